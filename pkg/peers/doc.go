/*
Package peers abstracts how a Burrow node sees the rest of the fleet.

The core only consumes the Directory capability: a list of
{name, address, tags, online} records. Production wiring queries the
private overlay network's local status API; static deployments read a YAML
peers file; tests supply a fixed list. Authentication, encryption and
addressing belong to the overlay and are invisible here.

# Implementations

OverlayDirectory:
  - GET <OVERLAY_STATUS_URL>/peers on the local overlay daemon
  - 5s timeout; failures surface to the caller, which falls back to
    static configuration

StaticDirectory:
  - fixed in-memory list, or loaded from PEERS_FILE:

	- name: central-1
	  address: 10.0.0.1:8080
	  tags: [central]
	  online: true
	- name: regional-eu
	  address: 10.0.1.1:8080
	  tags: [regional, eu-west]
	  online: true

# Tag Conventions

Roles are plain tags ("central", "regional", "cache"); regions are plain
tags too ("eu-west"). FilterByTag returns online peers with a tag;
FilterByTagAndRegion narrows to one region, with an empty region matching
everything.

# Usage

	dir := peers.NewOverlayDirectory(cfg.OverlayStatusURL)

	all, err := dir.Peers(ctx)
	regionals := peers.FilterByTag(all, "regional")
	upstream := peers.FilterByTagAndRegion(all, "regional", "eu-west")

# See Also

  - pkg/replication for how discovery feeds fan-out and upstream choice
*/
package peers

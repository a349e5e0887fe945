// Package config loads hiqnet-node configuration from YAML.
//
// A file only needs the keys it changes; everything else keeps the values
// from Default. Example:
//
//	device:
//	  name: FOH
//	  serial_number: SI-0001
//	network:
//	  interface: eth0
//	node:
//	  keepalive: 10s
//	  state_path: /var/lib/hiqnet/state.yaml
//	log:
//	  level: debug
//	  protocol_log: /var/log/hiqnet/node.hqlog
//	metrics:
//	  listen: ":9380"
package config

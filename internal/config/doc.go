// Package config loads the inetwork settings file.
//
// The file is YAML. Any key left out keeps its documented default, so an
// empty file (or no file at all) yields a working configuration. The file
// is only read; nothing in this module writes it.
//
// # Configuration File Location
//
// $INETWORK_CONFIG names the file explicitly. Otherwise it is looked up in
// platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/inetwork/config.yaml or $HOME/.config/inetwork/config.yaml
//   - macOS: $HOME/.config/inetwork/config.yaml
//   - Windows: %LOCALAPPDATA%\inetwork\config.yaml
//
// # Example File
//
//	version: 1
//	log_level: info
//	server:
//	  base_port: 10001
//	  port_step: 2
//	  discoverable: true
//	discovery:
//	  group: 224.0.1.141
//	  port: 2541
//	  timeout: 1s
//	metrics:
//	  addr: ":9090"
//
// # Usage Example
//
//	settings, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	srv, err := tcp.NewServer("echo", settings.TCPConfig())
package config

// Package config loads and watches the entropyscan configuration file.
//
// Top-level types:
//   - Config{Scan, Server}: full config tree parsed from YAML
//   - ScanConfig: max_file_size, chunk_size, min_entropy, format, workers,
//     detect_content_type, excludes
//   - ServerConfig: http_port, broadcast_interval, auth (serve subcommand only)
//   - ByteSize: humanized byte count ("2GiB", "2.5 MB", "2560000")
//
// Load(path) applies defaults (2 GiB max size, 2,560,000 byte chunks, table
// output, one worker, port 8080), reads the YAML file when path is set, then
// overlays ENTROPYSCAN_* environment variables and validates. The CLI
// applies its own flags on top and calls Validate again.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config, re-adding the watch after editors
// replace the file.
package config

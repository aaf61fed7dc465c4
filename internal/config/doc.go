// Package config provides centralized configuration management for the
// license server. It loads configuration from multiple sources, validates it,
// and resolves data file locations.
//
// # Configuration Sources
//
// Configuration is layered in order of increasing precedence:
//
//	1. Default values (Default)
//	2. A YAML file (LICSRV_CONFIG, config.yaml or configs/config.yaml)
//	3. Environment variables
//
// # Environment Variables
//
// All environment variables follow the pattern LICSRV_<SECTION>_<KEY>:
//
//	LICSRV_SERVER_PORT=5000
//	LICSRV_PATHS_DATA_DIR=/var/lib/licsrv
//	LICSRV_STORAGE_DRIVER=sqlite
//	LICSRV_SECURITY_ADMIN_KEY_HASH='$2a$10$...'
//	LICSRV_EMAIL_API_KEY=SG.xxx
//	LICSRV_BACKUP_RETENTION=hourly:24,daily:30
//
// # Paths
//
// Relative file paths in the paths section resolve against paths.data_dir:
//
//	cfg.LicensesPath() // data/licenses.json
//	cfg.BackupPath()   // data/backups
//
// # Usage
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config

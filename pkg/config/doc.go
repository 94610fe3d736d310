// A configuration file looks like:
//
//	inventory:
//	  search_paths:
//	    - /usr/lib/memgate
//	    - ${HOME}/.local/lib/memgate
//	  max_args_length: 4096
//	  builtins: true
//	logging:
//	  level: debug
//	  format: json
//	access:
//	  cache_pages: 256
//	  cache_page_size: 4096
//	metrics:
//	  enabled: true
//	  address: 127.0.0.1:9464
//	tracing:
//	  enabled: false
//
// Every key can be overridden from the environment by upper-casing its path
// and joining it with underscores under the MEMGATE prefix:
//
//	MEMGATE_LOGGING_LEVEL=trace
//	MEMGATE_ACCESS_CACHE_PAGES=1024
//	MEMGATE_INVENTORY_SEARCH_PATHS=/opt/memgate,/srv/plugins
//
// ${VAR_NAME} references in a file are replaced with the variable's value,
// or the empty string when unset, before the file is parsed.
package config

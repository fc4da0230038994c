// Package settings persists the display toggles and logger overrides.
//
// The file is JSON, or YAML when its extension is .yaml or .yml:
//
//	{
//	  "show-class-name": false,
//	  "show-mod-name": true,
//	  "trace-enabled": false,
//	  "color": true,
//	  "log-levels": {"modlog/plugins/echo": "DEBUG"}
//	}
//
// Loading is lenient: a key holding an invalid value is reported and skipped,
// and whatever was in effect before stays in effect.
package settings

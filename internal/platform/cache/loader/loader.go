// Package loader registers the cache drivers via blank imports.
//
//	import _ "github.com/vedesh-padal/tal-chat-app/internal/platform/cache/loader"
package loader

import (
	_ "github.com/vedesh-padal/tal-chat-app/internal/platform/cache/memory"
	_ "github.com/vedesh-padal/tal-chat-app/internal/platform/cache/redis"
)

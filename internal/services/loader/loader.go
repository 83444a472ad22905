// Package loader registers every service with the registry through blank imports.
package loader

import (
	_ "github.com/vedesh-padal/tal-chat-app/internal/services/api"
	_ "github.com/vedesh-padal/tal-chat-app/internal/services/realtime"
)

package tokens

import (
	"context"
	"fmt"
)

// NewStore builds the configured token store. kind matches the tokens.store
// configuration value.
func NewStore(ctx context.Context, kind, filePath, databaseURL string) (Store, error) {
	switch kind {
	case "file":
		return NewFileStore(filePath), nil
	case "postgres":
		return NewPostgresStore(ctx, databaseURL)
	default:
		return nil, fmt.Errorf("tokens: unknown store %q", kind)
	}
}

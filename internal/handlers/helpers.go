package handlers

import (
	"github.com/meshcall/controlplane/internal/apperror"
)

func stringField(payload map[string]any, name string) string {
	s, _ := payload[name].(string)
	return s
}

func stringMapField(payload map[string]any, name string) map[string]string {
	raw, ok := payload[name].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func notJoined() error {
	return apperror.New(apperror.NotFound, "connection has not joined a room")
}

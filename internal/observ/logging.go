package observ

import (
	"encoding/json"
	"fmt"
	"time"
)

// Log emits one JSON object per line on stdout. Every component funnels its
// events through here so log processing stays a one-liner downstream.
func Log(event string, kv map[string]any) {
	if kv == nil {
		kv = map[string]any{}
	}
	kv["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	kv["event"] = event
	b, _ := json.Marshal(kv)
	fmt.Println(string(b))
}

// Error is Log with an error field attached; err may be nil.
func Error(event string, err error, kv map[string]any) {
	if kv == nil {
		kv = map[string]any{}
	}
	if err != nil {
		kv["error"] = err.Error()
	}
	Log(event, kv)
}

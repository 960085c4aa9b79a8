//go:build integration

package integration

import "encoding/json"

func jsonBody(v any) ([]byte, error) { return json.Marshal(v) }

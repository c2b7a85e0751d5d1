// Package util holds small helpers shared by the demo binaries.
package util

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// JWSToText renders a serialized JWS/JWT in a readable form for
// debug output: decoded header and payload, truncated signature.
func JWSToText(jwsData string) string {
	parts := strings.Split(jwsData, ".")
	if len(parts) != 3 {
		return jwsData
	}

	sb := strings.Builder{}
	sb.WriteString("base64url(")
	sb.WriteString(tokenPartToText(parts[0]))
	sb.WriteString(").base64url(")
	sb.WriteString(tokenPartToText(parts[1]))
	sb.WriteString(").signature(")
	if len(parts[2]) > 10 {
		sb.WriteString(parts[2][0:10])
	} else {
		sb.WriteString(parts[2])
	}
	sb.WriteString("...)\n")
	return sb.String()
}

func tokenPartToText(s string) string {
	dataBytes, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return err.Error()
	}
	dataMap := make(map[string]interface{})
	err = json.Unmarshal(dataBytes, &dataMap)
	if err != nil {
		return string(dataBytes)
	}

	jsonBytes, err := json.MarshalIndent(dataMap, "  ", "  ")
	if err != nil {
		return err.Error()
	}
	return string(jsonBytes)
}

// OpenBrowser opens the given URL in the default browser.
func OpenBrowser(url string) error {
	switch runtime.GOOS {
	case "linux":
		return exec.Command("xdg-open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		return exec.Command("open", url).Start()
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}

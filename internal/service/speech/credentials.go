package speech

import (
	"fmt"
	"strings"

	"github.com/tarawell/tara-companion/backend/internal/config"
)

// resolveCredentials returns the normalized AppID and AccessToken, with a
// clear error when either is missing.
func resolveCredentials(cfg *config.SpeechConfig) (string, string, error) {
	if cfg == nil {
		return "", "", fmt.Errorf("speech provider config is not initialized")
	}

	appID := strings.TrimSpace(cfg.AppID)
	token := strings.TrimSpace(cfg.AccessToken)

	if appID == "" || token == "" {
		return "", "", fmt.Errorf("speech provider config is missing AppID or AccessToken")
	}

	return appID, token, nil
}

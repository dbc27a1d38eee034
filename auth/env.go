package auth

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
)

const (
	EnvHost          = "DATABRICKS_HOST"
	EnvToken         = "DATABRICKS_TOKEN"
	EnvClientID      = "DATABRICKS_CLIENT_ID"
	EnvClientSecret  = "DATABRICKS_CLIENT_SECRET"
	EnvConfigFile    = "DATABRICKS_CONFIG_FILE"
	EnvConfigProfile = "DATABRICKS_CONFIG_PROFILE"
)

type envProvider struct{}

func (p *envProvider) Auth(ctx context.Context) (http.Header, error) {
	token := strings.TrimSpace(os.Getenv(EnvToken))
	if token == "" {
		return nil, fmt.Errorf("%s is not set", EnvToken)
	}
	if err := checkTokenExpiry(token); err != nil {
		return nil, err
	}
	return BearerHeader(token), nil
}

func (p *envProvider) ResolveHost() (string, error) {
	host := strings.TrimSpace(os.Getenv(EnvHost))
	if host == "" {
		return "", fmt.Errorf("%s is not set", EnvHost)
	}
	return host, nil
}

package auth

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OIDCTokenPath 是 workspace host 下 OAuth token endpoint 的路径。
const OIDCTokenPath = "/oidc/v1/token"

// oauthProvider 用 service principal 的 client credentials 换取短期
// access token（M2M 流程）。TokenSource 自带缓存与到期刷新，因此
// 重复 Auth 不会每次都打 token endpoint。
type oauthProvider struct {
	opts options

	mu  sync.Mutex
	src oauth2.TokenSource
}

func (p *oauthProvider) Auth(ctx context.Context) (http.Header, error) {
	src, err := p.tokenSource()
	if err != nil {
		return nil, err
	}
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch oauth token: %w", err)
	}
	return BearerHeader(tok.AccessToken), nil
}

func (p *oauthProvider) ResolveHost() (string, error) {
	host, _, _, err := p.resolveCredentials()
	if err != nil {
		return "", err
	}
	return host, nil
}

func (p *oauthProvider) tokenSource() (oauth2.TokenSource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.src != nil {
		return p.src, nil
	}

	host, clientID, clientSecret, err := p.resolveCredentials()
	if err != nil {
		return nil, err
	}
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("oauth client credentials not configured (set %s/%s)", EnvClientID, EnvClientSecret)
	}

	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     canonicalHost(host) + OIDCTokenPath,
		Scopes:       []string{"all-apis"},
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	log.Debug().Msgf("oauth token source created, token_url=%s", cfg.TokenURL)

	p.src = cfg.TokenSource(context.Background())
	return p.src, nil
}

// resolveCredentials 依次尝试显式 Option、环境变量、配置文件 profile。
func (p *oauthProvider) resolveCredentials() (host, clientID, clientSecret string, err error) {
	host = p.opts.host
	if host == "" {
		host = strings.TrimSpace(os.Getenv(EnvHost))
	}
	clientID = p.opts.clientID
	if clientID == "" {
		clientID = strings.TrimSpace(os.Getenv(EnvClientID))
	}
	clientSecret = p.opts.clientSecret
	if clientSecret == "" {
		clientSecret = strings.TrimSpace(os.Getenv(EnvClientSecret))
	}

	if host == "" || clientID == "" || clientSecret == "" {
		if prof, _, profErr := (&cfgFileProvider{opts: p.opts}).readProfile(); profErr == nil {
			if host == "" {
				host = prof.Host
			}
			if clientID == "" {
				clientID = prof.ClientID
			}
			if clientSecret == "" {
				clientSecret = prof.ClientSecret
			}
		}
	}

	if host == "" {
		return "", "", "", fmt.Errorf("workspace host is required for oauth (set %s)", EnvHost)
	}
	return host, clientID, clientSecret, nil
}

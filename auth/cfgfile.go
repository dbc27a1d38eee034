package auth

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/ini.v1"
)

// DefaultProfile 是未指定 profile 时使用的 section 名。
const DefaultProfile = "DEFAULT"

// Profile 是 ~/.databrickscfg 中一个 section 的内容。
type Profile struct {
	Host         string
	Token        string
	ClientID     string
	ClientSecret string
}

// ReadConfigProfile 从 databricks 配置文件（INI 格式）读取指定 profile。
func ReadConfigProfile(path, profile string) (*Profile, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read databricks config file: %w", err)
	}

	section, err := cfg.GetSection(profile)
	if err != nil {
		return nil, fmt.Errorf("profile %q not found in %s", profile, path)
	}

	return &Profile{
		Host:         strings.TrimSpace(section.Key("host").String()),
		Token:        strings.TrimSpace(section.Key("token").String()),
		ClientID:     strings.TrimSpace(section.Key("client_id").String()),
		ClientSecret: strings.TrimSpace(section.Key("client_secret").String()),
	}, nil
}

func configDefaultPath() (string, error) {
	if path := strings.TrimSpace(os.Getenv(EnvConfigFile)); path != "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".databrickscfg"), nil
}

type cfgFileProvider struct {
	opts options

	mu    sync.Mutex
	oauth *oauthProvider
}

func (p *cfgFileProvider) Auth(ctx context.Context) (http.Header, error) {
	prof, profile, err := p.readProfile()
	if err != nil {
		return nil, err
	}

	if prof.Token != "" {
		if err := checkTokenExpiry(prof.Token); err != nil {
			return nil, err
		}
		return BearerHeader(prof.Token), nil
	}
	if prof.ClientID != "" && prof.ClientSecret != "" {
		return p.oauthFor(prof).Auth(ctx)
	}
	return nil, fmt.Errorf("profile %q has neither token nor client_id/client_secret", profile)
}

func (p *cfgFileProvider) ResolveHost() (string, error) {
	prof, profile, err := p.readProfile()
	if err != nil {
		return "", err
	}
	if prof.Host == "" {
		return "", fmt.Errorf("profile %q has no host", profile)
	}
	return prof.Host, nil
}

func (p *cfgFileProvider) readProfile() (*Profile, string, error) {
	path := p.opts.configFile
	if path == "" {
		resolved, err := configDefaultPath()
		if err != nil {
			return nil, "", err
		}
		path = resolved
	}
	profile := p.opts.profile
	if profile == "" {
		profile = envOr(EnvConfigProfile, DefaultProfile)
	}

	prof, err := ReadConfigProfile(path, profile)
	if err != nil {
		return nil, profile, err
	}
	return prof, profile, nil
}

// oauthFor 为 client credentials 形态的 profile 复用同一个内部 oauth
// provider，保证 TokenSource 的缓存不会因每次 Auth 重建而失效。
func (p *cfgFileProvider) oauthFor(prof *Profile) *oauthProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.oauth == nil || p.oauth.opts.clientID != prof.ClientID {
		opts := p.opts
		opts.host = prof.Host
		opts.clientID = prof.ClientID
		opts.clientSecret = prof.ClientSecret
		p.oauth = &oauthProvider{opts: opts}
	}
	return p.oauth
}

package main

import (
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/LubyRuffy/dbx2o"
	"github.com/LubyRuffy/dbx2o/auth"
	"github.com/LubyRuffy/dbx2o/openaihttp"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

func main() {
	_ = godotenv.Load()

	aliases := map[string]string{}
	var (
		listen          = flag.String("listen", "127.0.0.1:8080", "listen address")
		basePath        = flag.String("base-path", "/v1", "base path prefix")
		host            = flag.String("host", "", "workspace host (default: provider/DATABRICKS_HOST)")
		authSource      = flag.String("auth-source", "", "auth source: env|cfgfile|oauth|auto (default: auto)")
		profile         = flag.String("profile", "", "config file profile name (default: DEFAULT)")
		configFile      = flag.String("config-file", "", "config file path (default: ~/.databrickscfg)")
		defaultEndpoint = flag.String("default-endpoint", dbx2o.DefaultEndpointID, "endpoint used in the startup examples")
		verbose         = flag.Bool("verbose", false, "enable debug logging for auth/transport")
	)
	flag.Func("alias", "model alias mapping name=endpoint (repeatable)", func(v string) error {
		name, endpoint, err := parseAlias(v)
		if err != nil {
			return err
		}
		aliases[name] = endpoint
		return nil
	})
	flag.Parse()

	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	provider, err := auth.NewProvider(*authSource,
		auth.WithHost(*host),
		auth.WithProfile(*profile),
		auth.WithConfigFile(*configFile),
	)
	if err != nil {
		log.Fatalf("invalid auth-source: %v", err)
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	err = openaihttp.RegisterGinRoutes(r, openaihttp.Config{
		BasePath: *basePath,
		Host:     *host,
		Provider: provider,
		Aliases:  aliases,
	})
	if err != nil {
		log.Fatalf("register routes failed: %v", err)
	}

	srv := &http.Server{
		Addr:              *listen,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	localAddr := addrForLocalClient(*listen)
	log.Printf("dbx2o server listening on http://%s%s", localAddr, *basePath)
	log.Printf("try: curl http://%s%s/models", localAddr, *basePath)
	log.Printf("try: curl http://%s%s/chat/completions -H 'Content-Type: application/json' -d '{\"model\":%q,\"messages\":[{\"role\":\"user\",\"content\":\"hi\"}]}'",
		localAddr, *basePath, dbx2o.EndpointNamespace+*defaultEndpoint)
	log.Printf("OpenAI SDK base_url: http://%s%s", localAddr, *basePath)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Println(err)
	}
}

// parseAlias 解析 -alias 的 name=endpoint 写法。
func parseAlias(v string) (string, string, error) {
	name, endpoint, ok := strings.Cut(v, "=")
	name = strings.TrimSpace(name)
	endpoint = strings.TrimSpace(endpoint)
	if !ok || name == "" || endpoint == "" {
		return "", "", fmt.Errorf("expect name=endpoint, got %q", v)
	}
	return name, endpoint, nil
}

// addrForLocalClient 把监听地址换算成本机可访问的形式，只用于启动日志里的示例 URL。
func addrForLocalClient(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	switch host {
	case "", "0.0.0.0", "::":
		return net.JoinHostPort("127.0.0.1", port)
	default:
		return net.JoinHostPort(host, port)
	}
}

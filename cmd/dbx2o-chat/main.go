package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"

	"github.com/LubyRuffy/dbx2o"
	"github.com/LubyRuffy/dbx2o/auth"
	"github.com/LubyRuffy/dbx2o/serving"
	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/schema"
	"github.com/joho/godotenv"
)

// eino/adk 的 ChatModelAgentConfig 要求 Name 必填。
const defaultAgentName = "dbx2o-chat"

func main() {
	_ = godotenv.Load()

	var (
		endpoint   = flag.String("endpoint", dbx2o.DefaultEndpointFullID, "serving endpoint (supports databricks/<name>)")
		input      = flag.String("input", "你好，介绍一下你自己", "user input")
		host       = flag.String("host", "", "workspace host (default: provider/DATABRICKS_HOST)")
		authSource = flag.String("auth-source", "", "auth source: env|cfgfile|oauth|auto (default: auto)")
		profile    = flag.String("profile", "", "config file profile name (default: DEFAULT)")
		configFile = flag.String("config-file", "", "config file path (default: ~/.databrickscfg)")
		stream     = flag.Bool("stream", false, "print incremental chunks instead of the final message")
	)
	flag.Parse()

	provider, err := auth.NewProvider(*authSource,
		auth.WithHost(*host),
		auth.WithProfile(*profile),
		auth.WithConfigFile(*configFile),
	)
	if err != nil {
		log.Fatalf("invalid auth-source: %v", err)
	}

	m, err := dbx2o.NewChatModel(dbx2o.ChatConfig{
		Endpoint: *endpoint,
		Host:     *host,
		Provider: provider,
	})
	if err != nil {
		log.Fatalf("create model failed: %v", err)
	}

	ctx := context.Background()
	if *stream {
		runStream(ctx, m, *input)
		return
	}

	agent, err := adk.NewChatModelAgent(ctx, &adk.ChatModelAgentConfig{
		Name:  defaultAgentName,
		Model: m,
	})
	if err != nil {
		log.Fatalf("create agent failed: %v", err)
	}

	runner := adk.NewRunner(ctx, adk.RunnerConfig{
		Agent:           agent,
		EnableStreaming: false,
	})

	iter := runner.Run(ctx, []adk.Message{schema.UserMessage(*input)})
	for {
		ev, ok := iter.Next()
		if !ok {
			break
		}
		if ev.Err != nil {
			log.Fatalf("run failed: %v", ev.Err)
		}
		if ev.Output == nil || ev.Output.MessageOutput == nil {
			continue
		}
		msg := ev.Output.MessageOutput.Message
		if msg == nil {
			continue
		}
		if msg.Content != "" {
			fmt.Print(msg.Content)
		}
	}
	fmt.Println()
}

// runStream 直接走模型的流式接口，把增量内容边收边打。
func runStream(ctx context.Context, m *serving.ChatModel, input string) {
	sr, err := m.Stream(ctx, []*schema.Message{schema.UserMessage(input)})
	if err != nil {
		log.Fatalf("stream failed: %v", err)
	}
	defer sr.Close()

	for {
		msg, err := sr.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("stream recv failed: %v", err)
		}
		if msg.Content != "" {
			fmt.Print(msg.Content)
		}
	}
	fmt.Println()
}

package commands

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/54b3r/energy-assistant/internal/classifier"
	"github.com/54b3r/energy-assistant/internal/digest"
	"github.com/54b3r/energy-assistant/internal/edge"
	"github.com/54b3r/energy-assistant/internal/edgeserver"
	"github.com/54b3r/energy-assistant/internal/feedback"
	"github.com/54b3r/energy-assistant/internal/feedbacksync"
	"github.com/54b3r/energy-assistant/internal/generation"
	"github.com/54b3r/energy-assistant/internal/history"
	"github.com/54b3r/energy-assistant/internal/llm"
	"github.com/54b3r/energy-assistant/internal/provider"
	"github.com/54b3r/energy-assistant/internal/tracing"
)

// disabledDeviceRunner replaces DevicePipeline when FEATURE_DEVICE_CONTROL_ENABLED
// is false: it refuses every request with a friendly message instead of
// touching the integrator.
type disabledDeviceRunner struct{}

func (disabledDeviceRunner) Run(ctx context.Context, interactionID, message, token, locationID string) (string, error) {
	return "Device control is currently disabled at this site.", nil
}

// NewServeCmd constructs the `serve` command, which starts the edge HTTP
// boundary: prompt, reset, context (daily digest), feedback, and ready.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the edge HTTP server",
		Long: `Start the edge HTTP server, which classifies incoming messages and
dispatches them to the device-control or energy-efficiency pipeline.

Examples:
  energyassistant-edge serve
  energyassistant-edge serve --port 9090
  MODEL_PROVIDER=azure energyassistant-edge serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Printf("serve: langfuse tracing enabled")
			} else {
				log.Printf("serve: langfuse tracing disabled (LANGFUSE_PUBLIC_KEY not set)")
			}

			providerCfg := provider.ConfigFromEnv()
			chatModel, err := provider.New(ctx, providerCfg)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}
			caller := llm.NewModelCaller(chatModel)
			log.Printf("serve: provider initialised successfully")

			cls := classifier.New(caller)

			integratorBaseURL := getenvDefault("INTEGRATOR_BASE_URL", "http://localhost:9000")
			integrator := edge.NewHTTPIntegrator(integratorBaseURL, nil)

			var devices edge.DeviceRunner
			if getenvBoolDefault("FEATURE_DEVICE_CONTROL_ENABLED", true) {
				devices = edge.NewDevicePipeline(chatModel, integrator, nil)
			} else {
				devices = disabledDeviceRunner{}
			}

			promptTemplatePath := getenvDefault("ENERGYASSISTANT_PROMPT_TEMPLATE_PATH", "prompts/energy_efficiency_system.txt")
			promptTemplate, err := generation.LoadPromptTemplate(promptTemplatePath)
			if err != nil {
				return fmt.Errorf("serve: failed to load prompt template: %w", err)
			}
			allowGeneralKnowledge := getenvBoolDefault("RETRIEVAL_ALLOW_GENERAL_KNOWLEDGE", false)
			localGen := generation.New(promptTemplate, allowGeneralKnowledge, caller, nil)

			ragEnabled := getenvBoolDefault("FEATURE_RAG_ENABLED", true)
			cloudRAGEndpoint := getenvDefault("CLOUD_RAG_ENDPOINT", "http://localhost:8081")
			efficiency := edge.NewEfficiencyPipeline(edge.Config{
				RAGEnabled:  ragEnabled,
				RAGEndpoint: cloudRAGEndpoint + "/api/rag/answer",
				RAGTimeout:  time.Duration(getenvIntDefault("CLOUD_RAG_TIMEOUT_MS", 1500)) * time.Millisecond,
			}, localGen, nil)

			conversationsDir := getenvDefault("ENERGYASSISTANT_CONVERSATIONS_DIR", "./data/conversations")
			hist := history.New(conversationsDir)

			orchestrator := edge.New(hist, cls, devices, efficiency, nil)

			digestTrackingDir := getenvDefault("ENERGYASSISTANT_DIGEST_TRACKING_DIR", "./user_data/digest_tracking")
			digestMgr := digest.New(digestTrackingDir)

			feedbackDir := getenvDefault("ENERGYASSISTANT_FEEDBACK_DIR", "./user_data/feedback")
			feedbackStore, err := feedback.Open(feedbackDir)
			if err != nil {
				return fmt.Errorf("serve: failed to open feedback store: %w", err)
			}
			defer feedbackStore.Close()

			checkpointPath := getenvDefault("ENERGYASSISTANT_FEEDBACK_SYNC_CHECKPOINT", "./data/feedback_sync_checkpoint.json")
			syncer := feedbacksync.New(feedbackStore, checkpointPath, cloudRAGEndpoint+"/api/feedback/sync", nil, nil)
			if err := syncer.Start(getenvDefault("FEEDBACK_SYNC_CRON", "0 2 * * *")); err != nil {
				return fmt.Errorf("serve: failed to start feedback sync: %w", err)
			}
			defer syncer.Stop()

			pingers := []edgeserver.Pinger{
				edgeserver.NewCloudRAGPinger(cloudRAGEndpoint),
				llm.NewLLMPinger(chatModel, provider.NewHealthCheckConfig(providerCfg.Backend, providerCfg), string(providerCfg.Backend)),
			}

			srv, err := edgeserver.New(orchestrator, hist, digestMgr, feedbackStore, &edgeserver.Config{
				Host:    host,
				Port:    port,
				Pingers: pingers,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}

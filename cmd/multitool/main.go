package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/cexll/agentsdk-go/pkg/api"
	"github.com/cexll/agentsdk-go/pkg/model"
	"github.com/spf13/cobra"

	"github.com/ergon73/langchain-cli-multi-agent/internal/channel"
	"github.com/ergon73/langchain-cli-multi-agent/internal/config"
	"github.com/ergon73/langchain-cli-multi-agent/internal/memstore"
	"github.com/ergon73/langchain-cli-multi-agent/internal/toolkit"
)

// Runtime interface for agent runtime (allows mocking in tests)
type Runtime interface {
	Run(ctx context.Context, req api.Request) (*api.Response, error)
	Close()
}

type runtimeWrapper struct {
	rt *api.Runtime
}

func (r *runtimeWrapper) Run(ctx context.Context, req api.Request) (*api.Response, error) {
	return r.rt.Run(ctx, req)
}

func (r *runtimeWrapper) Close() {
	r.rt.Close()
}

// RuntimeFactory creates a Runtime instance
type RuntimeFactory func(cfg *config.Config) (Runtime, error)

// newRuntime is swappable in tests to capture the options without making
// network calls.
var newRuntime = api.New

// DefaultRuntimeFactory creates the agentsdk-go runtime with the full tool
// set registered.
func DefaultRuntimeFactory(cfg *config.Config) (Runtime, error) {
	if cfg.Provider.APIKey == "" {
		return nil, fmt.Errorf("API key not set. Run 'multitool onboard' or set MULTITOOL_API_KEY / OPENAI_API_KEY")
	}

	sysPrompt := buildSystemPrompt(cfg)

	var provider api.ModelFactory
	switch cfg.Provider.Type {
	case "anthropic":
		provider = &model.AnthropicProvider{
			APIKey:    cfg.Provider.APIKey,
			BaseURL:   cfg.Provider.BaseURL,
			ModelName: cfg.Agent.Model,
			MaxTokens: cfg.Agent.MaxTokens,
		}
	default:
		provider = &model.OpenAIProvider{
			APIKey:    cfg.Provider.APIKey,
			BaseURL:   cfg.Provider.BaseURL,
			ModelName: cfg.Agent.Model,
			MaxTokens: cfg.Agent.MaxTokens,
		}
	}

	rt, err := newRuntime(context.Background(), api.Options{
		ProjectRoot:   cfg.Agent.Workspace,
		ModelFactory:  provider,
		SystemPrompt:  sysPrompt,
		MaxIterations: cfg.Agent.MaxToolIterations,
		Tools:         toolkit.All(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("create runtime: %w", err)
	}
	return &runtimeWrapper{rt: rt}, nil
}

// AgentOptions for running the agent with custom dependencies
type AgentOptions struct {
	RuntimeFactory RuntimeFactory
	Stdin          io.Reader
	Stdout         io.Writer
	Stderr         io.Writer
}

var rootCmd = &cobra.Command{
	Use:   "multitool",
	Short: "multitool - персональный AI-ассистент с инструментами",
}

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the assistant in single message or interactive mode",
	RunE:  runAgent,
}

var telegramCmd = &cobra.Command{
	Use:   "telegram",
	Short: "Run the assistant as a Telegram bot",
	RunE:  runTelegram,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and workspace",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show multitool status",
	RunE:  runStatus,
}

var messageFlag string

func init() {
	agentCmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Single message to send")
	rootCmd.AddCommand(agentCmd, telegramCmd, onboardCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runAgent(cmd *cobra.Command, args []string) error {
	return runAgentWithOptions(AgentOptions{})
}

// runAgentWithOptions runs the agent with injectable dependencies for testing
func runAgentWithOptions(opts AgentOptions) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	factory := opts.RuntimeFactory
	if factory == nil {
		factory = DefaultRuntimeFactory
	}

	rt, err := factory(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	stdin := opts.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	ctx := context.Background()

	// Single message mode
	if messageFlag != "" {
		resp, err := rt.Run(ctx, api.Request{
			Prompt:    messageFlag,
			SessionID: "cli",
		})
		if err != nil {
			return fmt.Errorf("agent error: %w", err)
		}
		if resp != nil && resp.Result != nil {
			fmt.Fprintln(stdout, resp.Result.Output)
		}
		return nil
	}

	// Interactive mode
	printWelcome(stdout)
	scanner := bufio.NewScanner(stdin)
	for {
		fmt.Fprint(stdout, "\nВы: ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		lowered := strings.ToLower(input)
		if lowered == "/exit" || lowered == "/quit" || lowered == "exit" || lowered == "quit" {
			fmt.Fprintln(stdout, "\n👋 До свидания!")
			break
		}
		if lowered == "/help" || lowered == "help" || lowered == "помощь" {
			fmt.Fprint(stdout, helpText)
			continue
		}

		resp, err := rt.Run(ctx, api.Request{
			Prompt:    input,
			SessionID: "cli-repl",
		})
		if err != nil {
			fmt.Fprintf(stderr, "❌ Ошибка: %v\n", err)
			continue
		}
		if resp != nil && resp.Result != nil {
			fmt.Fprintf(stdout, "\n🤖 Ассистент: %s\n", resp.Result.Output)
		}
	}
	return nil
}

func printWelcome(w io.Writer) {
	divider := strings.Repeat("=", 60)
	fmt.Fprintln(w, divider)
	fmt.Fprintln(w, "🤖 Personal AI Multitool Assistant")
	fmt.Fprintln(w, divider)
	fmt.Fprint(w, "\nДоступные возможности:\n"+
		"  🔍 Поиск в интернете\n"+
		"  🌤️  Погода для любого города\n"+
		"  💰 Курсы криптовалют\n"+
		"  💱 Конвертация валют\n"+
		"  📁 Работа с файлами\n"+
		"  🎨 Генерация QR-кодов\n"+
		"  💾 Сохранение в память\n\n")
	fmt.Fprintln(w, "Введите '/exit' или '/quit' для выхода")
}

const helpText = "\n📖 Доступные команды:\n" +
	"  /exit, /quit - Выход из программы\n" +
	"  /help - Показать эту справку\n" +
	"\nПримеры запросов:\n" +
	"  - Какая погода в Москве?\n" +
	"  - Найди информацию о Python\n" +
	"  - Какой курс биткоина?\n" +
	"  - Сколько стоит 100 USD в RUB?\n" +
	"  - Прочитай файл README.md\n" +
	"  - Создай QR-код для https://example.com\n"

func runTelegram(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Channels.Telegram.Token == "" {
		return fmt.Errorf("telegram token not set. Set channels.telegram.token in %s or MULTITOOL_TELEGRAM_TOKEN", config.ConfigPath())
	}

	rt, err := DefaultRuntimeFactory(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	respond := func(ctx context.Context, senderID, text string) (string, error) {
		resp, err := rt.Run(ctx, api.Request{
			Prompt:    text,
			SessionID: "telegram-" + senderID,
		})
		if err != nil {
			return "", err
		}
		if resp == nil || resp.Result == nil {
			return "", nil
		}
		return resp.Result.Output, nil
	}

	ch, err := channel.NewTelegramChannel(cfg.Channels.Telegram, respond)
	if err != nil {
		return fmt.Errorf("create telegram channel: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := ch.Start(ctx); err != nil {
		return fmt.Errorf("start telegram channel: %w", err)
	}

	<-ctx.Done()
	return ch.Stop()
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		data, _ := json.MarshalIndent(cfg, "", "  ")
		if err := os.WriteFile(cfgPath, data, 0644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	cfg, _ := config.LoadConfig()
	ws := cfg.Agent.Workspace
	if err := os.MkdirAll(filepath.Join(ws, cfg.Tools.QRDir), 0755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}

	writeIfNotExists(filepath.Join(ws, "AGENTS.md"), defaultAgentsMD)

	fmt.Printf("Workspace ready: %s\n", ws)
	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set your API key\n", cfgPath)
	fmt.Println("  2. Or set MULTITOOL_API_KEY / OPENAI_API_KEY environment variable")
	fmt.Println("  3. Run 'multitool agent -m \"Какая погода в Москве?\"' to test")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Workspace: %s\n", cfg.Agent.Workspace)
	fmt.Printf("Model: %s\n", cfg.Agent.Model)
	fmt.Printf("Provider: %s\n", providerDisplay(cfg.Provider.Type))
	if cfg.Provider.APIKey != "" && len(cfg.Provider.APIKey) > 8 {
		masked := cfg.Provider.APIKey[:4] + "..." + cfg.Provider.APIKey[len(cfg.Provider.APIKey)-4:]
		fmt.Printf("API Key: %s\n", masked)
	} else if cfg.Provider.APIKey != "" {
		fmt.Println("API Key: set")
	} else {
		fmt.Println("API Key: not set")
	}
	fmt.Printf("Telegram: enabled=%v\n", cfg.Channels.Telegram.Enabled)

	if _, err := os.Stat(cfg.Agent.Workspace); err != nil {
		fmt.Println("Workspace: not found (run 'multitool onboard')")
	} else {
		store := memstoreForConfig(cfg)
		fmt.Printf("Memory: %d entries\n", len(store.Load()))
	}

	return nil
}

func memstoreForConfig(cfg *config.Config) *memstore.Store {
	return memstore.New(filepath.Join(cfg.Agent.Workspace, cfg.Tools.MemoryFile), cfg.Tools.MemoryMaxEntries)
}

func providerDisplay(t string) string {
	if t == "" {
		return "openai (default)"
	}
	return t
}

// buildSystemPrompt composes the agent instructions: the workspace AGENTS.md
// when present, otherwise the built-in Russian prompt.
func buildSystemPrompt(cfg *config.Config) string {
	if data, err := os.ReadFile(filepath.Join(cfg.Agent.Workspace, "AGENTS.md")); err == nil && len(data) > 0 {
		return string(data)
	}
	return defaultAgentsMD
}

func writeIfNotExists(path, content string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		_ = os.WriteFile(path, []byte(content), 0644)
		fmt.Printf("  Created: %s\n", path)
	}
}

const defaultAgentsMD = `Ты — полезный AI-ассистент с доступом к различным инструментам.
Ты можешь:
- 🔍 Искать информацию в интернете
- 🌤️ Узнавать погоду в любом городе
- 💰 Проверять курсы криптовалют
- 💱 Конвертировать валюты
- 📁 Читать и записывать файлы (file_read, file_write)
- 🎨 Создавать QR-коды
- 💾 Сохранять важные разговоры в память (memory_save)

ВАЖНО:
- Если пользователь просит сохранить диалог или текст в ФАЙЛ, используй инструмент file_write, а НЕ memory_save
- Если пользователь просит сохранить в память для запоминания, используй memory_save
- Если пользователь просит сохранить 'этот разговор', 'наш диалог' или 'важные моменты разговора' в ПАМЯТЬ (не в файл), используй memory_save с последним сообщением пользователя и твоим ответом. Не проси уточнений - просто сохрани текущий обмен сообщениями.
- При создании QR-кода для URL НЕ указывай filename - функция сама сгенерирует уникальное имя на основе домена

Всегда отвечай на русском языке. Будь дружелюбным и полезным. Внимательно читай запросы пользователя и используй правильные инструменты.
`

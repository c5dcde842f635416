package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"little-giant/handler"
	"little-giant/internal/config"
	"little-giant/internal/dispatch"
	"little-giant/internal/integrations/browser"
	"little-giant/internal/integrations/paramstore"
	"little-giant/internal/intent"
	"little-giant/internal/pageaction"
	"little-giant/internal/provider"
	"little-giant/internal/repository"
	"little-giant/internal/usecase"
)

const appDir = "little-giant"

// app is the wired coordinator shared by the subcommands.
type app struct {
	env        config.Env
	loader     config.Loader
	reloader   *config.Reloader
	holder     *provider.Holder
	classifier *intent.Classifier
	browser    *browser.Controller
	assistant  *usecase.Assistant
	router     *handler.Router
	closers    []io.Closer
}

type buildOptions struct {
	// withBrowser attaches a Chrome controller. Lambda runs without one.
	withBrowser bool
}

func buildApp(ctx context.Context, env config.Env, getenv func(string) string, logger *slog.Logger, opts buildOptions) (*app, error) {
	a := &app{env: env}

	var params config.ParamSource
	var dynamo *awsdynamodb.Client
	if env.UsesAWS() {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		if env.ParamPrefix != "" {
			ps, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
			if err != nil {
				return nil, fmt.Errorf("create SSM client: %w", err)
			}
			params = ps
		}
		if env.HistoryDriver == config.HistoryDynamoDB {
			dynamo = awsdynamodb.NewFromConfig(awsCfg)
		}
	}

	// ---- Model settings ----
	a.holder = provider.NewHolder(nil)
	a.loader = config.Loader{File: env.SettingsFile, Prefix: env.ParamPrefix, Params: params, Getenv: getenv}
	a.reloader = config.NewReloader(a.loader, func(s config.Settings) error {
		return a.holder.Reconfigure(s.ClientConfig())
	}, logger)
	if _, err := a.reloader.Reload(ctx); err != nil {
		logger.Warn("model settings unavailable, chat disabled until fixed", "err", err)
	}

	// ---- History ----
	var store repository.Store
	switch env.HistoryDriver {
	case config.HistoryDynamoDB:
		ds, err := repository.NewDynamoStore(dynamo, env.StateTable)
		if err != nil {
			return nil, fmt.Errorf("create dynamodb history: %w", err)
		}
		store = ds
	default:
		ss, err := repository.NewSQLiteStore(env.HistoryPath)
		if err != nil {
			return nil, fmt.Errorf("create sqlite history: %w", err)
		}
		store = ss
		a.closers = append(a.closers, ss)
	}

	// ---- Use cases ----
	chat, err := usecase.NewChatService(a.holder, store, env.MaxContextItems, env.MaxMessageLength)
	if err != nil {
		return nil, fmt.Errorf("create chat service: %w", err)
	}
	a.classifier = intent.NewClassifier(a.holder, logger)

	deps := handler.Deps{
		Classifier: a.classifier,
		Chat:       chat,
		Connection: a.holder,
	}
	if opts.withBrowser {
		a.browser = browser.New(browser.Config{
			DebuggerURL: env.BrowserDebuggerURL,
			Headless:    env.BrowserHeadless,
		}, pageaction.NewExecutor(pageaction.WithLogger(logger)), logger)
		a.closers = append(a.closers, a.browser)
		deps.Browser = a.browser

		summarizer, err := usecase.NewSummarizeService(a.holder, a.browser)
		if err != nil {
			return nil, fmt.Errorf("create summarize service: %w", err)
		}
		deps.Summarizer = summarizer
	}
	var opener dispatch.URLOpener
	var actor dispatch.PageActor
	if a.browser != nil {
		opener, actor = a.browser, a.browser
	}
	a.assistant, err = usecase.NewAssistant(a.classifier, chat, opener, actor, logger)
	if err != nil {
		return nil, fmt.Errorf("create assistant: %w", err)
	}
	deps.Assistant = a.assistant

	a.router, err = handler.NewRouter(deps, logger)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}
	return a, nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// resolvePath places relative paths under the user config directory.
func resolvePath(p string) string {
	if p == "" || p == ":memory:" || filepath.IsAbs(p) {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return p
	}
	return filepath.Join(dir, p)
}

func defaultSettingsPath() string {
	return resolvePath(filepath.Join(appDir, "settings.yaml"))
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	dividendapp "github.com/savacoop/saccocore/internal/dividend/application"
	dividenddomain "github.com/savacoop/saccocore/internal/dividend/domain"
	dividendmysql "github.com/savacoop/saccocore/internal/dividend/infrastructure/persistence/mysql"
	dividendhttp "github.com/savacoop/saccocore/internal/dividend/interfaces/http"
	ledgerapp "github.com/savacoop/saccocore/internal/ledger/application"
	ledgerdomain "github.com/savacoop/saccocore/internal/ledger/domain"
	ledgermysql "github.com/savacoop/saccocore/internal/ledger/infrastructure/persistence/mysql"
	ledgerhttp "github.com/savacoop/saccocore/internal/ledger/interfaces/http"
	loanapp "github.com/savacoop/saccocore/internal/loan/application"
	loandomain "github.com/savacoop/saccocore/internal/loan/domain"
	loanmysql "github.com/savacoop/saccocore/internal/loan/infrastructure/persistence/mysql"
	loanhttp "github.com/savacoop/saccocore/internal/loan/interfaces/http"
	memberapp "github.com/savacoop/saccocore/internal/member/application"
	memberdomain "github.com/savacoop/saccocore/internal/member/domain"
	membermysql "github.com/savacoop/saccocore/internal/member/infrastructure/persistence/mysql"
	memberhttp "github.com/savacoop/saccocore/internal/member/interfaces/http"
	notificationapp "github.com/savacoop/saccocore/internal/notification/application"
	notificationdomain "github.com/savacoop/saccocore/internal/notification/domain"
	notificationmysql "github.com/savacoop/saccocore/internal/notification/infrastructure/persistence/mysql"
	"github.com/savacoop/saccocore/internal/notification/infrastructure/sender"
	notificationhttp "github.com/savacoop/saccocore/internal/notification/interfaces/http"
	paymentapp "github.com/savacoop/saccocore/internal/payment/application"
	paymentdomain "github.com/savacoop/saccocore/internal/payment/domain"
	"github.com/savacoop/saccocore/internal/payment/infrastructure/gateway"
	paymentmysql "github.com/savacoop/saccocore/internal/payment/infrastructure/persistence/mysql"
	paymenthttp "github.com/savacoop/saccocore/internal/payment/interfaces/http"
	voucherapp "github.com/savacoop/saccocore/internal/voucher/application"
	voucherdomain "github.com/savacoop/saccocore/internal/voucher/domain"
	vouchermysql "github.com/savacoop/saccocore/internal/voucher/infrastructure/persistence/mysql"
	voucherhttp "github.com/savacoop/saccocore/internal/voucher/interfaces/http"
	"github.com/savacoop/saccocore/pkg/cache"
	"github.com/savacoop/saccocore/pkg/config"
	"github.com/savacoop/saccocore/pkg/db"
	"github.com/savacoop/saccocore/pkg/logger"
	"github.com/savacoop/saccocore/pkg/metrics"
	"github.com/savacoop/saccocore/pkg/middleware"
	"github.com/savacoop/saccocore/pkg/mq"
	"github.com/savacoop/saccocore/pkg/ratelimit"
)

var configPath = flag.String("config", "configs/config.toml", "config file path")

// kafkaPublisher adapts the mq producer to the ledger's event publisher.
type kafkaPublisher struct {
	producer *mq.KafkaProducer
}

func (p *kafkaPublisher) Publish(ctx context.Context, topic, key string, value interface{}) error {
	if p.producer == nil {
		return nil
	}
	return p.producer.SendMessage(ctx, topic, key, value)
}

func main() {
	flag.Parse()

	var cfg config.Config
	if err := config.Load(*configPath, &cfg); err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logger); err != nil {
		fmt.Printf("failed to init logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.Get()

	m := metrics.New(cfg.ServiceName)
	if cfg.Metrics.Enabled {
		go m.ExposeHTTP(cfg.Metrics.Port)
	}

	database, err := db.Init(db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		slog.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if cfg.Environment == "dev" {
		if err := database.AutoMigrate(
			&memberdomain.Member{},
			&ledgerdomain.Account{},
			&ledgerdomain.Transaction{},
			&loandomain.LoanProduct{},
			&loandomain.Loan{},
			&loandomain.LoanRepayment{},
			&loandomain.Guarantor{},
			&voucherdomain.PaymentVoucher{},
			&dividenddomain.Dividend{},
			&dividenddomain.MemberDividend{},
			&notificationdomain.Notification{},
			&paymentdomain.PaymentRequest{},
		); err != nil {
			slog.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
	}

	redisCache, err := cache.New(cache.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxPoolSize:  cfg.Redis.MaxPoolSize,
		ConnTimeout:  cfg.Redis.ConnTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		slog.Error("failed to connect redis, sweep guard disabled", "error", err)
		redisCache = nil
	}

	var producer *mq.KafkaProducer
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = mq.NewProducer(mq.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			GroupID:      cfg.Kafka.GroupID,
			MaxRetries:   cfg.Kafka.MaxRetries,
			RetryBackoff: cfg.Kafka.RetryBackoff,
		})
		if err != nil {
			slog.Error("failed to create kafka producer", "error", err)
			producer = nil
		}
	}

	// Repositories.
	memberRepo := membermysql.NewRepository(database.DB)
	accountRepo := ledgermysql.NewAccountRepository(database.DB)
	txnRepo := ledgermysql.NewTransactionRepository(database.DB)
	loanRepo := loanmysql.NewLoanRepository(database.DB)
	productRepo := loanmysql.NewProductRepository(database.DB)
	repaymentRepo := loanmysql.NewRepaymentRepository(database.DB)
	guarantorRepo := loanmysql.NewGuarantorRepository(database.DB)
	voucherRepo := vouchermysql.NewRepository(database.DB)
	dividendRepo := dividendmysql.NewRepository(database.DB)
	notificationRepo := notificationmysql.NewRepository(database.DB)
	paymentRepo := paymentmysql.NewRepository(database.DB)

	// Notification senders: log-only in dev, kafka-backed otherwise.
	senders := map[notificationdomain.Channel]notificationdomain.Sender{
		notificationdomain.ChannelSMS:   sender.NewMockSMSSender(),
		notificationdomain.ChannelEmail: sender.NewMockEmailSender(),
	}
	if cfg.Environment != "dev" && producer != nil {
		senders[notificationdomain.ChannelSMS] = sender.NewKafkaSender(producer, cfg.Kafka.NotificationTopic)
		senders[notificationdomain.ChannelEmail] = sender.NewKafkaSender(producer, cfg.Kafka.NotificationTopic)
	}
	dispatcher := notificationapp.NewDispatcher(notificationRepo, memberRepo, senders, m, log)

	// Application services.
	ledgerSvc := ledgerapp.NewService(database, accountRepo, txnRepo,
		&kafkaPublisher{producer: producer}, cfg.Kafka.LedgerEventTopic, m, log)
	memberSvc := memberapp.NewService(database, memberRepo, accountRepo, log)
	voucherSvc := voucherapp.NewService(database, voucherRepo, log)
	loanSvc := loanapp.NewService(database, loanRepo, productRepo, repaymentRepo, guarantorRepo,
		memberRepo, ledgerSvc, voucherSvc, dispatcher, policyFromConfig(cfg.Policy), m, log)
	dividendSvc := dividendapp.NewService(database, dividendRepo, memberRepo, ledgerSvc, dispatcher,
		cfg.Policy.DividendBatchSize, m, log)
	paymentSvc := paymentapp.NewService(database, paymentRepo, ledgerSvc, gateway.NewMockGateway(),
		dispatcher, cfg.Gateway, m, log)

	// HTTP layer.
	if cfg.Environment != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.Logging(), middleware.Metrics(m))
	if cfg.RateLimit.Enabled && redisCache != nil {
		limiter := ratelimit.NewRedisRateLimiter(redisCache.Client())
		router.Use(middleware.RateLimit(limiter, ratelimit.Limit{
			Rate:   cfg.RateLimit.Rate,
			Period: time.Duration(cfg.RateLimit.Period) * time.Second,
			Burst:  cfg.RateLimit.Burst,
		}))
	}
	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	memberhttp.NewMemberHandler(memberSvc).RegisterRoutes(router)
	ledgerhttp.NewLedgerHandler(ledgerSvc).RegisterRoutes(router)
	loanhttp.NewLoanHandler(loanSvc).RegisterRoutes(router)
	voucherhttp.NewVoucherHandler(voucherSvc).RegisterRoutes(router)
	dividendhttp.NewDividendHandler(dividendSvc).RegisterRoutes(router)
	paymenthttp.NewPaymentHandler(paymentSvc).RegisterRoutes(router)
	notificationhttp.NewNotificationHandler(dispatcher).RegisterRoutes(router)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		slog.Info("http server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	arrearsJob := loanapp.NewArrearsJob(loanSvc, redisCache, m, log)
	g.Go(func() error {
		arrearsJob.Start(ctx)
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			slog.Info("shutting down")
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown failed", "error", err)
		}
		if producer != nil {
			_ = producer.Close()
		}
		if redisCache != nil {
			_ = redisCache.Close()
		}
		return context.Canceled
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func policyFromConfig(cfg config.PolicyConfig) loandomain.Policy {
	policy := loandomain.DefaultPolicy()
	if v, err := decimal.NewFromString(cfg.MinShareCapital); err == nil && v.IsPositive() {
		policy.MinShareCapital = v
	}
	if v, err := decimal.NewFromString(cfg.DebtToIncomeRatio); err == nil && v.IsPositive() {
		policy.DebtToIncomeRatio = v
	}
	if cfg.MinMembershipMonths > 0 {
		policy.MinMembershipMonths = cfg.MinMembershipMonths
	}
	if cfg.MinRecentDeposits > 0 {
		policy.MinRecentDeposits = cfg.MinRecentDeposits
	}
	if cfg.DepositWindowMonths > 0 {
		policy.DepositWindowMonths = cfg.DepositWindowMonths
	}
	if cfg.ArrearsDefaultThreshold > 0 {
		policy.ArrearsDefaultThreshold = cfg.ArrearsDefaultThreshold
	}
	return policy
}

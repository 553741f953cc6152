// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"infinity-go/internal/config"
	"infinity-go/internal/handler"
	"infinity-go/internal/middleware"
	"infinity-go/internal/notifier"
	"infinity-go/internal/repository"
	"infinity-go/internal/service"
	"infinity-go/pkg/database"
	"infinity-go/pkg/embedding"
	"infinity-go/pkg/es"
	"infinity-go/pkg/kafka"
	"infinity-go/pkg/log"
	"infinity-go/pkg/storage"
	"infinity-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis、对象存储和 Elasticsearch
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch, cfg.Embedding.Dimensions); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}

	// 4. 初始化变更通知。启用 Kafka 时本实例的事件同时广播给其他实例
	instanceID := uuid.NewString()
	var sinks []notifier.Sink
	if cfg.Kafka.Enabled {
		kafka.InitProducer(cfg.Kafka)
		sinks = append(sinks, notifier.NewKafkaSink(instanceID))
	}
	changeNotifier := notifier.New(instanceID, cfg.Notifier.BatchWindowMS, sinks...)
	defer changeNotifier.Close()
	if cfg.Kafka.Enabled {
		go kafka.StartConsumer(cfg.Kafka, changeNotifier)
	}

	// 5. 初始化 Repository
	userRepo := repository.NewUserRepository(database.DB)
	apiKeyRepo := repository.NewAPIKeyRepository(database.DB)
	modelRepo := repository.NewModelRepository(database.DB, database.RDB)
	recordRepo := repository.NewRecordRepository(database.DB)
	viewRepo := repository.NewViewRepository(database.DB)
	vectorRepo := repository.NewVectorRepository(es.ESClient, cfg.Elasticsearch.IndexName)

	// 6. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	userService := service.NewUserService(userRepo, jwtManager, database.RDB)
	apiKeyService := service.NewAPIKeyService(apiKeyRepo, cfg.APIKey.Prefix)
	embeddingService := service.NewEmbeddingService(embeddingClient)
	viewService := service.NewViewService(viewRepo, modelRepo, changeNotifier)
	schemaService := service.NewSchemaService(modelRepo, recordRepo, viewRepo, vectorRepo, viewService)
	recordService := service.NewRecordService(
		recordRepo,
		vectorRepo,
		embeddingService,
		changeNotifier,
		cfg.MinIO.BucketName,
		time.Duration(cfg.Export.URLExpireMinutes)*time.Minute,
	)

	// 7. 初始化 Handler
	authHandler := handler.NewAuthHandler(userService)
	apiKeyHandler := handler.NewAPIKeyHandler(apiKeyService)
	modelHandler := handler.NewModelHandler(schemaService)
	dataHandler := handler.NewDataHandler(schemaService, recordService)
	publicDataHandler := handler.NewPublicDataHandler(schemaService, recordService)
	viewHandler := handler.NewViewHandler(schemaService, viewService)
	realtimeHandler := handler.NewRealtimeHandler(schemaService, viewService, changeNotifier, jwtManager)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 9. 注册路由
	authed := middleware.AuthMiddleware(jwtManager, userService)
	apiV1 := r.Group("/api/v1")
	{
		// Auth 路由组
		auth := apiV1.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refreshToken", authHandler.RefreshToken)
			auth.POST("/logout", authed, authHandler.Logout)
			auth.GET("/me", authed, authHandler.Profile)
		}

		// API 密钥管理，需要登录
		apiKeys := apiV1.Group("/api-keys", authed)
		{
			apiKeys.POST("", apiKeyHandler.Create)
			apiKeys.GET("", apiKeyHandler.List)
			apiKeys.DELETE("/:keyId", apiKeyHandler.Revoke)
		}

		// 模型定义管理，需要登录
		models := apiV1.Group("/models", authed)
		{
			models.POST("", modelHandler.Create)
			models.GET("", modelHandler.List)
			models.GET("/:modelId", modelHandler.Get)
			models.PATCH("/:modelId", modelHandler.Update)
			models.DELETE("/:modelId", modelHandler.Delete)
			models.POST("/:modelId/archive", modelHandler.Archive)
			models.POST("/:modelId/restore", modelHandler.Restore)

			// 模型下的视图集合
			models.POST("/:modelId/views", viewHandler.Create)
			models.GET("/:modelId/views", viewHandler.List)
			models.GET("/:modelId/views/default", viewHandler.GetDefault)
		}

		// 数据记录，需要登录
		data := apiV1.Group("/data", authed)
		{
			data.POST("/:modelId", dataHandler.Create)
			data.GET("/:modelId", dataHandler.List)
			// 单条记录支持 ?id= 和路径参数两种寻址
			data.PUT("/:modelId", dataHandler.Replace)
			data.PATCH("/:modelId", dataHandler.Patch)
			data.DELETE("/:modelId", dataHandler.Delete)
			data.GET("/:modelId/:recordId", dataHandler.Get)
			data.PUT("/:modelId/:recordId", dataHandler.Replace)
			data.PATCH("/:modelId/:recordId", dataHandler.Patch)
			data.DELETE("/:modelId/:recordId", dataHandler.Delete)
			data.POST("/:modelId/search", dataHandler.Search)
			data.POST("/:modelId/clear", dataHandler.Clear)
			data.POST("/:modelId/export", dataHandler.Export)
		}

		// 单个视图的操作，需要登录
		views := apiV1.Group("/views", authed)
		{
			views.GET("/:viewId", viewHandler.Get)
			views.PATCH("/:viewId", viewHandler.Update)
			views.DELETE("/:viewId", viewHandler.Delete)
		}

		// 公开数据 API，以 x-api-key 认证，模型按名称寻址
		// 支持 ?model= 查询参数和路径参数两种形式
		public := apiV1.Group("/public/data", middleware.APIKeyAuthMiddleware(apiKeyService))
		{
			public.GET("", publicDataHandler.Get)
			public.POST("", publicDataHandler.Post)
			public.PUT("", publicDataHandler.Put)
			public.PATCH("", publicDataHandler.Patch)
			public.DELETE("", publicDataHandler.Delete)
			public.POST("/search", publicDataHandler.Search)
			public.GET("/:modelName", publicDataHandler.Get)
			public.POST("/:modelName", publicDataHandler.Post)
			public.PUT("/:modelName", publicDataHandler.Put)
			public.PATCH("/:modelName", publicDataHandler.Patch)
			public.DELETE("/:modelName", publicDataHandler.Delete)
			public.POST("/:modelName/search", publicDataHandler.Search)
			public.GET("/:modelName/:recordId", publicDataHandler.Get)
			public.PUT("/:modelName/:recordId", publicDataHandler.Put)
			public.PATCH("/:modelName/:recordId", publicDataHandler.Patch)
			public.DELETE("/:modelName/:recordId", publicDataHandler.Delete)
		}
	}

	// 实时推送 (WebSocket)
	r.GET("/realtime/ws", realtimeHandler.Handle)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}

package handler

import (
	"net/http"
	"sync"

	"infinity-go/internal/notifier"
	"infinity-go/internal/service"
	"infinity-go/pkg/log"
	"infinity-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// RealtimeHandler 通过 WebSocket 把变更事件批次推送给订阅的客户端。
type RealtimeHandler struct {
	schemaService service.SchemaService
	viewService   service.ViewService
	notifier      *notifier.Notifier
	jwtManager    *token.JWTManager
}

// NewRealtimeHandler 创建一个新的 RealtimeHandler 实例。
func NewRealtimeHandler(
	schemaService service.SchemaService,
	viewService service.ViewService,
	n *notifier.Notifier,
	jwtManager *token.JWTManager,
) *RealtimeHandler {
	return &RealtimeHandler{
		schemaService: schemaService,
		viewService:   viewService,
		notifier:      n,
		jwtManager:    jwtManager,
	}
}

// Handle 处理一个传入的 WebSocket 订阅连接。
// WebSocket 无法携带请求头，token 和订阅目标都从查询参数读取：
// ?token=<jwt>&model_id=<id> 或 ?token=<jwt>&view_id=<id>，
// immediate=true 时事件逐条推送而不攒批。
func (h *RealtimeHandler) Handle(c *gin.Context) {
	claims, err := h.jwtManager.VerifyToken(c.Query("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, Response{Success: false, Error: "invalid or expired token"})
		return
	}

	// 确定订阅频道并校验资源可见性
	var channel string
	switch {
	case c.Query("model_id") != "":
		m, err := h.schemaService.GetModel(c.Request.Context(), c.Query("model_id"), claims.UserID)
		if err != nil {
			respondError(c, err)
			return
		}
		channel = notifier.ModelChannel(m.ID)
	case c.Query("view_id") != "":
		v, err := h.viewService.GetView(c.Request.Context(), c.Query("view_id"), claims.UserID)
		if err != nil {
			respondError(c, err)
			return
		}
		channel = notifier.ViewChannel(v.ID)
	default:
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: "model_id or view_id is required"})
		return
	}
	immediate := c.Query("immediate") == "true"

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Errorf("[RealtimeHandler] WebSocket 升级失败: %v", err)
		return
	}

	// gorilla 的连接不允许并发写，批次投递用互斥锁串行化
	var writeMu sync.Mutex
	sub := h.notifier.Subscribe(channel, immediate, func(batch []notifier.Message) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(batch); err != nil {
			log.Warnf("[RealtimeHandler] 推送事件批次失败, channel: %s, error: %v", channel, err)
		}
	})

	// 读循环只用来感知连接关闭。连接断开时注销订阅，攒批中的事件随之投递
	go func() {
		defer func() {
			h.notifier.Unsubscribe(sub)
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// chatd is the Connect chat relay: it terminates authenticated WebSocket
// connections, persists rooms and messages in Postgres, fans events out
// across instances over NATS, and tracks presence in Redis. It also serves
// the chat REST API used to seed clients.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/connect/chat-app/internal/api"
	"github.com/connect/chat-app/internal/auth"
	"github.com/connect/chat-app/internal/chat"
	"github.com/connect/chat-app/internal/config"
	"github.com/connect/chat-app/internal/messaging"
	"github.com/connect/chat-app/internal/metrics"
	"github.com/connect/chat-app/internal/moderation"
	"github.com/connect/chat-app/internal/presence"
	"github.com/connect/chat-app/internal/protocol"
	"github.com/connect/chat-app/internal/ratelimit"
	"github.com/connect/chat-app/internal/server"
	"github.com/connect/chat-app/internal/store"
)

func main() {
	tokenUser := flag.String("token-user", "", "print a signed access token for this user id and exit")
	tokenName := flag.String("token-name", "", "display name to embed when printing a token")
	flag.Parse()

	cfg := config.Load()

	if *tokenUser != "" {
		name := *tokenName
		if name == "" {
			name = *tokenUser
		}
		token, err := auth.Sign(cfg.JWTSecret, *tokenUser, name, 24*time.Hour)
		if err != nil {
			log.Fatalf("failed to sign token: %v", err)
		}
		fmt.Println(token)
		return
	}

	serverConfig := server.DefaultConfig()
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			serverConfig.MaxConnections = n
		}
	}
	if v := os.Getenv("READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			serverConfig.ReadTimeout = d
		}
	}
	if v := os.Getenv("WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			serverConfig.WriteTimeout = d
		}
	}

	// --- Postgres ---
	st, err := store.Open(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}

	// --- Redis ---
	presenceStore, err := presence.NewStore(cfg.RedisAddr)
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	limiter := ratelimit.NewLimiter(presenceStore.Client())

	// --- NATS ---
	natsConfig := messaging.DefaultConfig()
	natsConfig.URL = cfg.NATSURL
	natsConfig.Name = cfg.ServerName
	natsClient, err := messaging.NewClient(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	log.Printf("Connect chat relay starting")
	log.Printf("  listen_addr:     %s", cfg.ListenAddr)
	log.Printf("  max_connections: %d", serverConfig.MaxConnections)
	log.Printf("  nats_url:        %s", cfg.NATSURL)
	log.Printf("  redis_addr:      %s", cfg.RedisAddr)
	log.Printf("  server_name:     %s", cfg.ServerName)

	contentFilter := moderation.NewFilter()

	dispatcher := server.NewEventDispatcher()
	srv := server.NewServer(serverConfig, cfg.JWTSecret, dispatcher.Dispatch)

	// sendError writes a structured error event back to one connection.
	sendError := func(conn *server.Connection, code, message string) {
		data, err := protocol.NewEvent(protocol.EventError, protocol.ErrorPayload{
			Code: code, Message: message,
		})
		if err != nil {
			return
		}
		_ = conn.WriteMessage(data)
	}

	// publishRoom builds a wire envelope and publishes it on the room's NATS
	// subject; local fan-out happens in the SubscribeRooms handler so every
	// instance (this one included) delivers the same way.
	publishRoom := func(roomID, exceptUserID, event string, payload interface{}) {
		data, err := protocol.NewEvent(event, payload)
		if err != nil {
			log.Printf("[relay] build %s for room=%s: %v", event, roomID, err)
			return
		}
		err = natsClient.PublishRoomEvent(messaging.RoomEvent{
			RoomID:       roomID,
			ExceptUserID: exceptUserID,
			Payload:      data,
		})
		if err != nil {
			log.Printf("[relay] publish %s for room=%s: %v", event, roomID, err)
		}
	}

	// -----------------------------------------------------------------------
	// chat:join / chat:leave — room subscription management
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.EventChatJoin, func(conn *server.Connection, payload interface{}) {
		p, ok := payload.(protocol.RoomPayload)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		member, err := st.IsMember(ctx, p.ChatRoomID, conn.UserID)
		if err != nil {
			log.Printf("[join] membership check user=%s room=%s: %v", conn.UserID, p.ChatRoomID, err)
			sendError(conn, "internal_error", "could not join room")
			return
		}
		if !member {
			sendError(conn, "forbidden", "not a member of this room")
			return
		}
		srv.Rooms().Join(p.ChatRoomID, conn)
		log.Printf("[join] user=%s room=%s", conn.UserID, p.ChatRoomID)
	})

	dispatcher.Register(protocol.EventChatLeave, func(conn *server.Connection, payload interface{}) {
		p, ok := payload.(protocol.RoomPayload)
		if !ok {
			return
		}
		srv.Rooms().Leave(p.ChatRoomID, conn.ID)
		log.Printf("[leave] user=%s room=%s", conn.UserID, p.ChatRoomID)
	})

	// -----------------------------------------------------------------------
	// message:send — persist and fan out
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.EventMessageSend, func(conn *server.Connection, payload interface{}) {
		p, ok := payload.(protocol.SendMessagePayload)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if !limiter.Allow(ctx, ratelimit.RuleMessages, conn.UserID) {
			metrics.EventErrors.WithLabelValues("rate_limited").Inc()
			sendError(conn, "rate_limited", "too many messages, slow down")
			return
		}
		if p.Type == chat.MessageText {
			if err := chat.ValidateText(p.Content); err != nil {
				sendError(conn, "invalid_message", err.Error())
				return
			}
			if result := contentFilter.Check(p.Content); result.Blocked {
				log.Printf("[message] blocked user=%s reason=%s term=%q", conn.UserID, result.Reason, result.Term)
				metrics.EventErrors.WithLabelValues(result.Reason).Inc()
				sendError(conn, "blocked_content", "message rejected by content filter")
				return
			}
		}

		sender := chat.User{ID: conn.UserID, Name: conn.Name}
		msg, err := st.InsertMessage(ctx, p.ChatRoomID, sender, p.Type, p.Content, p.Image, p.Audio, p.ReplyTo)
		if err != nil {
			if err == store.ErrForbidden {
				sendError(conn, "forbidden", "not a member of this room")
			} else {
				log.Printf("[message] insert user=%s room=%s: %v", conn.UserID, p.ChatRoomID, err)
				sendError(conn, "internal_error", "could not send message")
			}
			return
		}

		// Messages echo back to the sender so the client appends exactly once.
		publishRoom(p.ChatRoomID, "", protocol.EventMessageNew, msg)
	})

	// -----------------------------------------------------------------------
	// message:delete — soft delete, fan out the tombstone
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.EventMessageDelete, func(conn *server.Connection, payload interface{}) {
		p, ok := payload.(protocol.MessagePayload)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		roomID, err := st.SoftDeleteMessage(ctx, p.MessageID, conn.UserID)
		if err != nil {
			if err == store.ErrForbidden {
				sendError(conn, "forbidden", "cannot delete this message")
			} else if err == store.ErrNotFound {
				sendError(conn, "not_found", "message not found")
			} else {
				log.Printf("[delete] message=%s user=%s: %v", p.MessageID, conn.UserID, err)
				sendError(conn, "internal_error", "could not delete message")
			}
			return
		}
		publishRoom(roomID, "", protocol.EventMessageDeleted, protocol.DeletedPayload{
			MessageID: p.MessageID,
		})
	})

	// -----------------------------------------------------------------------
	// message:react — toggle reaction, fan out the full bucket set
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.EventMessageReact, func(conn *server.Connection, payload interface{}) {
		p, ok := payload.(protocol.ReactPayload)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if !limiter.Allow(ctx, ratelimit.RuleReactions, conn.UserID) {
			metrics.EventErrors.WithLabelValues("rate_limited").Inc()
			sendError(conn, "rate_limited", "too many reactions, slow down")
			return
		}

		roomID, reactions, err := st.SetReaction(ctx, p.MessageID, conn.UserID, p.Emoji)
		if err != nil {
			if err == store.ErrNotFound {
				sendError(conn, "not_found", "message not found")
			} else {
				log.Printf("[react] message=%s user=%s: %v", p.MessageID, conn.UserID, err)
				sendError(conn, "internal_error", "could not set reaction")
			}
			return
		}
		publishRoom(roomID, "", protocol.EventMessageReaction, protocol.ReactionPayload{
			MessageID: p.MessageID,
			Reactions: reactions,
		})
	})

	// -----------------------------------------------------------------------
	// message:read — advance the read marker
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.EventMessageRead, func(conn *server.Connection, payload interface{}) {
		p, ok := payload.(protocol.MessagePayload)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := st.UpsertReadMarker(ctx, p.ChatRoomID, conn.UserID, p.MessageID); err != nil {
			log.Printf("[read] room=%s user=%s: %v", p.ChatRoomID, conn.UserID, err)
			return
		}
		publishRoom(p.ChatRoomID, "", protocol.EventMessageRead, protocol.ReadPayload{
			ChatRoomID: p.ChatRoomID,
			UserID:     conn.UserID,
			MessageID:  p.MessageID,
		})
	})

	// -----------------------------------------------------------------------
	// typing:start / typing:stop — relay, never echoed to the sender
	// -----------------------------------------------------------------------
	typingHandler := func(event string) server.EventHandler {
		return func(conn *server.Connection, payload interface{}) {
			p, ok := payload.(protocol.RoomPayload)
			if !ok {
				return
			}
			publishRoom(p.ChatRoomID, conn.UserID, event, protocol.TypingPayload{
				ChatRoomID: p.ChatRoomID,
				UserID:     conn.UserID,
			})
		}
	}
	dispatcher.Register(protocol.EventTypingStart, typingHandler(protocol.EventTypingStart))
	dispatcher.Register(protocol.EventTypingStop, typingHandler(protocol.EventTypingStop))

	// -----------------------------------------------------------------------
	// NATS fan-in: deliver room events to locally connected clients
	// -----------------------------------------------------------------------
	err = natsClient.SubscribeRooms(func(event messaging.RoomEvent) {
		n := srv.Rooms().Broadcast(event.RoomID, event.ExceptUserID, event.Payload)
		metrics.RoomFanout.Observe(float64(n))
	})
	if err != nil {
		log.Fatalf("failed to subscribe to room events: %v", err)
	}

	err = natsClient.SubscribePresence(func(event messaging.PresenceEvent) {
		name := protocol.EventUserOnline
		if !event.Online {
			name = protocol.EventUserOffline
		}
		data, err := protocol.NewEvent(name, protocol.UserPayload{UserID: event.UserID})
		if err != nil {
			return
		}
		srv.Connections().Broadcast(data)
	})
	if err != nil {
		log.Fatalf("failed to subscribe to presence events: %v", err)
	}

	// -----------------------------------------------------------------------
	// Connection lifecycle: user upsert and presence transitions
	// -----------------------------------------------------------------------
	srv.SetOnConnect(func(conn *server.Connection) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if !limiter.Allow(ctx, ratelimit.RuleConnects, conn.UserID) {
			sendError(conn, "rate_limited", "too many connections")
			srv.RemoveConnection(conn)
			return
		}

		if err := st.UpsertUser(ctx, chat.User{ID: conn.UserID, Name: conn.Name}); err != nil {
			log.Printf("[connect] upsert user=%s: %v", conn.UserID, err)
		}

		first, err := presenceStore.Connected(ctx, conn.UserID)
		if err != nil {
			log.Printf("[connect] presence user=%s: %v", conn.UserID, err)
			return
		}
		if first {
			if err := natsClient.PublishPresence(messaging.PresenceEvent{UserID: conn.UserID, Online: true}); err != nil {
				log.Printf("[connect] publish presence user=%s: %v", conn.UserID, err)
			}
		}
	})

	srv.SetOnDisconnect(func(conn *server.Connection) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		last, err := presenceStore.Disconnected(ctx, conn.UserID)
		if err != nil {
			log.Printf("[disconnect] presence user=%s: %v", conn.UserID, err)
			return
		}
		if last {
			if err := natsClient.PublishPresence(messaging.PresenceEvent{UserID: conn.UserID, Online: false}); err != nil {
				log.Printf("[disconnect] publish presence user=%s: %v", conn.UserID, err)
			}
		}
	})

	// Refresh presence TTLs for users with live connections.
	refreshDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-refreshDone:
				return
			case <-ticker.C:
				seen := make(map[string]struct{})
				for _, c := range srv.Connections().All() {
					if _, ok := seen[c.UserID]; ok {
						continue
					}
					seen[c.UserID] = struct{}{}
					ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					if err := presenceStore.Refresh(ctx, c.UserID); err != nil {
						log.Printf("[presence] refresh user=%s: %v", c.UserID, err)
					}
					cancel()
				}
			}
		}
	}()

	// -----------------------------------------------------------------------
	// HTTP surface: /ws, REST API, health, metrics
	// -----------------------------------------------------------------------
	startedAt := time.Now()

	router := chi.NewRouter()
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// The upgrade handler validates its own token (it also accepts ?token=
	// for browser WebSocket clients that cannot set headers).
	router.Get("/ws", srv.Handler())
	router.Handle("/metrics", metrics.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","connections":%d,"uptime":%q}`,
			srv.Connections().Count(), time.Since(startedAt).Round(time.Second))
	})

	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.JWTSecret))
		r.Mount("/", api.NewHandlers(st, natsClient).Routes())
	})

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	srv.Start()

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Printf("http shutdown error: %v", err)
		}

		close(refreshDone)
		srv.Shutdown()
		natsClient.Close()
		if err := presenceStore.Close(); err != nil {
			log.Printf("presence close error: %v", err)
		}
		if err := st.Close(); err != nil {
			log.Printf("store close error: %v", err)
		}
		os.Exit(0)
	}()

	log.Printf("chatd listening on %s", cfg.ListenAddr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("http server error: %v", err)
	}
}

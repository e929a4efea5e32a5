// Command server_example runs a Server demonstrating routing, CORS, basic
// auth, Server-Sent Events, and WebSocket echo (spec §6 CLI surface: argv[1]
// is the port; exit 1 on bind failure, 0 on clean shutdown).
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/WhileEndless/go-rawhttp/v2/internal/wlog"
	"github.com/WhileEndless/go-rawhttp/v2/pkg/httpcodec"
	"github.com/WhileEndless/go-rawhttp/v2/pkg/router"
	"github.com/WhileEndless/go-rawhttp/v2/pkg/server"
	"github.com/WhileEndless/go-rawhttp/v2/pkg/websocket"
)

func main() {
	maxBody := pflag.Int64("max-body", 0, "maximum buffered request body size in bytes (0 = default)")
	drain := pflag.Duration("drain-timeout", 5*time.Second, "graceful shutdown drain timeout")
	pflag.Parse()

	port := 8080
	if args := pflag.Args(); len(args) > 0 {
		p, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid port %q: %v\n", args[0], err)
			os.Exit(1)
		}
		port = p
	}

	log := wlog.Default()

	srv := server.New(server.Config{
		MaxBodySize:          *maxBody,
		ShutdownDrainTimeout: *drain,
		Logger:               log,
	})

	srv.EnableCORS(router.CORSConfig{AllowOrigin: "*"})
	srv.SetBasicAuth("admin", "changeme", "server_example")

	srv.Get("/health", func(res *httpcodec.Response) {
		res.JSON(httpcodec.StatusOK, map[string]string{"status": "ok"})
	})

	srv.GetRequest("/echo/:name", func(req *httpcodec.Request, res *httpcodec.Response) {
		res.JSON(httpcodec.StatusOK, map[string]string{"name": req.Param("name")})
	})

	srv.PostJSON("/upload", func(body []byte, res *httpcodec.Response) {
		res.JSON(httpcodec.StatusCreated, map[string]int{"bytes_received": len(body)})
	}, router.RouteOpts{Auth: router.AuthBasic, Description: "accepts a raw body, requires basic auth"})

	srv.StartSSE("/events", func(conn router.SSESender, req *httpcodec.Request) {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		n := 0
		for {
			select {
			case <-conn.Done():
				return
			case <-ticker.C:
				n++
				if err := conn.SendEvent("tick", fmt.Sprintf(`{"n":%d}`, n), "", 0); err != nil {
					return
				}
			}
		}
	})

	srv.UpgradeWebSocket("/ws", func(conn router.WSConn, req *httpcodec.Request) {
		conn.OnMessage(func(opcode int, data []byte) {
			if websocket.Opcode(opcode) == websocket.OpText {
				conn.Send(int(websocket.OpText), data)
			}
		})
	})

	if err := srv.Listen("0.0.0.0", port); err != nil {
		log.Errorf("listen: %v", err)
		os.Exit(1)
	}
	log.Infof("listening on port %d", port)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Infof("shutting down")
	if err := srv.Stop(); err != nil {
		log.Errorf("shutdown: %v", err)
		os.Exit(1)
	}
	os.Exit(0)
}

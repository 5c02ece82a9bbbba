package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"

	"reqline/internal/config"
	"reqline/internal/db"
	"reqline/internal/engine"
	"reqline/internal/migrate"
	"reqline/internal/server"
)

func main() {
	workspace := "/tmp/reqline-check1"
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		panic(err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		panic(err)
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		panic(err)
	}
	cfg := config.Default("reqline")
	e := engine.New(conn, cfg)
	ctx := context.Background()
	if _, err := e.CreateUser(ctx, engine.UserCreateOptions{
		ID: "alice", Email: "alice@example.com", FirstName: "Alice",
		Role: "usuario", Department: "Comunicaciones", ActorID: "checkcfg",
	}); err != nil {
		panic(err)
	}
	if _, err := e.CreateUser(ctx, engine.UserCreateOptions{
		ID: "dante", Email: "dante@example.com", FirstName: "Dante",
		Role: "diseñador", Department: "Comunicaciones", ActorID: "checkcfg",
	}); err != nil {
		panic(err)
	}
	jwtSecret := "test-secret"
	h, err := server.New(server.Config{Engine: e, BasePath: "/v1", Auth: server.AuthConfig{JWTSecret: jwtSecret}})
	if err != nil {
		panic(err)
	}
	ts := httptest.NewServer(h)
	defer ts.Close()

	login := map[string]any{"actor_id": "alice", "role": "usuario"}
	lb, _ := json.Marshal(login)
	lres, err := http.Post(ts.URL+"/v1/auth/dev/login", "application/json", bytes.NewReader(lb))
	if err != nil {
		panic(err)
	}
	var loginResp struct {
		Token string `json:"token"`
	}
	_ = json.NewDecoder(lres.Body).Decode(&loginResp)
	lres.Body.Close()

	body := map[string]any{
		"title":   "Banner de lanzamiento",
		"area":    "Comunicaciones",
		"type":    "banner",
		"urgency": "urgent",
	}
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/requests", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+loginResp.Token)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		panic(err)
	}
	defer res.Body.Close()
	var resp any
	_ = json.NewDecoder(res.Body).Decode(&resp)
	fmt.Printf("status=%d resp=%v\n", res.StatusCode, resp)
}

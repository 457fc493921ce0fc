package main

import (
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"

	"breaker-gateway/pkg/logger"

	"go.uber.org/zap"
)

// Upstream propositalmente instável para validar o breaker na mão:
// FAIL_RATE (0..1, padrão 0.5) das chamadas a /showTela respondem 500.
// POST /quebrar e POST /consertar forçam 100% e 0% de falha.
func main() {
	log, err := logger.New("info", "dev")
	if err != nil {
		panic(err)
	}

	var failPermil atomic.Int64
	failPermil.Store(int64(failRate() * 1000))

	http.HandleFunc("/showTela", func(w http.ResponseWriter, r *http.Request) {
		if rand.Int63n(1000) < failPermil.Load() {
			log.Info("falha simulada", zap.String("remote", r.RemoteAddr))
			http.Error(w, "servidor burrão falhou", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "<h1>Tela do Sistema</h1><p>Requisição recebida com sucesso!</p>")
		log.Info("alguém acessou o endpoint /showTela", zap.String("remote", r.RemoteAddr))
	})
	http.HandleFunc("POST /quebrar", func(w http.ResponseWriter, r *http.Request) {
		failPermil.Store(1000)
		log.Warn("modo quebrado: todas as chamadas falham")
		w.WriteHeader(http.StatusNoContent)
	})
	http.HandleFunc("POST /consertar", func(w http.ResponseWriter, r *http.Request) {
		failPermil.Store(0)
		log.Info("modo consertado: nenhuma chamada falha")
		w.WriteHeader(http.StatusNoContent)
	})

	log.Info("servidor rodando em http://localhost:8081", zap.Float64("fail_rate", float64(failPermil.Load())/1000))
	if err := http.ListenAndServe(":8081", nil); err != nil {
		log.Fatal("erro ao subir o servidor", zap.Error(err))
	}
}

func failRate() float64 {
	v, err := strconv.ParseFloat(os.Getenv("FAIL_RATE"), 64)
	if err != nil || v < 0 || v > 1 {
		return 0.5
	}
	return v
}

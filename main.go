package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/picofed/picofed/activitypub"
	"github.com/picofed/picofed/db"
	"github.com/picofed/picofed/util"
	"github.com/picofed/picofed/web"
	"golang.org/x/crypto/acme/autocert"
)

func main() {

	conf, err := util.ReadConf()
	if err != nil {
		log.Fatalln(err)
	}

	fmt.Println("Configuration: ")
	fmt.Println(util.PrettyPrint(conf))

	database, err := db.Open(util.ResolveFilePath(conf.Conf.DbFile))
	if err != nil {
		log.Fatalln(err)
	}

	deliverer := &activitypub.QueueDeliverer{DB: database, Conf: conf}
	deliverer.StartWorker()

	router := web.Router(conf, database, deliverer)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", conf.Conf.Host, conf.Conf.HttpPort),
		Handler: router,
	}

	if conf.Conf.SslDomain != "" {
		certManager := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(conf.Conf.SslDomain),
			Cache:      autocert.DirCache(util.ResolveFilePath("certs")),
		}
		server.Addr = ":https"
		server.TLSConfig = certManager.TLSConfig()
	}

	startServing(server, conf)
}

func startServing(server *http.Server, conf *util.AppConfig) {
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		var err error
		if server.TLSConfig != nil {
			log.Printf("Starting HTTPS server for %s", conf.Conf.SslDomain)
			err = server.ListenAndServeTLS("", "")
		} else {
			log.Printf("Starting HTTP server on %s", server.Addr)
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatalln(err)
		}
	}()

	<-done
	log.Println("Stopping HTTP server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer func() { cancel() }()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalln(err)
	}
}

// scanmock is a development stand-in for the warehouse server. It speaks the
// same POST/JSON protocol as production and serves a scenario loaded from a
// YAML fixture, so the client can be exercised without a live backend.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"github.com/scanwork/scanwork/internal/version"
)

func main() {
	addrFlag := flag.String("addr", ":8000", "Listen address")
	fixtureFlag := flag.String("fixture", "", "YAML scenario file (default: built-in demo scenario)")
	versionFlag := flag.Bool("version", false, "Show version information and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.GetDetailedVersionString())
		return
	}

	scenario, err := loadScenario(*fixtureFlag)
	if err != nil {
		log.Fatalf("Could not load scenario: %v", err)
	}

	srv := newServer(scenario, log.New(os.Stderr, "scanmock ", log.LstdFlags))
	r := newRouter(srv)

	log.Printf("scanmock listening on %s (%d users, %d documents)", *addrFlag, len(scenario.Users), len(scenario.Documents))
	if err := http.ListenAndServe(*addrFlag, r); err != nil {
		log.Fatal(err)
	}
}

func newRouter(srv *server) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/users", srv.handleUsers).Methods("POST")
	r.HandleFunc("/login", srv.handleLogin).Methods("POST")
	r.HandleFunc("/scanlogin", srv.handleScanLogin).Methods("POST")
	r.HandleFunc("/logout", srv.handleLogout).Methods("POST")
	r.HandleFunc("/docs", srv.withAuth(srv.handleDocs)).Methods("POST")
	r.HandleFunc("/doc", srv.withAuth(srv.handleDoc)).Methods("POST")
	r.HandleFunc("/pos", srv.withAuth(srv.handlePos)).Methods("POST")
	r.HandleFunc("/scan", srv.withAuth(srv.handleScan)).Methods("POST")
	r.HandleFunc("/scanone", srv.withAuth(srv.handleScan)).Methods("POST")
	r.HandleFunc("/scanlist", srv.withAuth(srv.handleScanList)).Methods("POST")
	r.HandleFunc("/button", srv.withAuth(srv.handleButton)).Methods("POST")
	r.HandleFunc("/select", srv.withAuth(srv.handleSelect)).Methods("POST")
	r.HandleFunc("/posdelete", srv.withAuth(srv.handlePosDelete)).Methods("POST")
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintln(w, "OK")
	}).Methods("GET")
	return r
}

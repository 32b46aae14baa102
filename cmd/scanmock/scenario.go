package main

import (
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// Scenario is the YAML fixture describing what the mock server serves.
type Scenario struct {
	Users     []ScenarioUser     `yaml:"users"`
	Tasks     []ScenarioTask     `yaml:"tasks"`
	Documents []ScenarioDocument `yaml:"documents"`
}

type ScenarioUser struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	// Password is hashed at load time; PasswordHash takes precedence when
	// both are present.
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"`
	// Badge is the scan-login token for this user.
	Badge string `yaml:"badge"`
}

type ScenarioTask struct {
	ID     string          `yaml:"id"`
	Name   string          `yaml:"name"`
	Orders []ScenarioOrder `yaml:"orders"`
}

type ScenarioOrder struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Comment1 string `yaml:"comment1"`
	Comment2 string `yaml:"comment2"`
	Status   string `yaml:"status"`
	// DocID is the document opened when this order is picked.
	DocID string `yaml:"doc_id"`
}

type ScenarioDocument struct {
	ID         string             `yaml:"id"`
	HeaderText string             `yaml:"header"`
	Status     string             `yaml:"status"`
	StatusText string             `yaml:"status_text"`
	Background string             `yaml:"background"`
	Items      []ScenarioDocItem  `yaml:"items"`
	Positions  []ScenarioPosition `yaml:"positions"`
	// Barcodes resolve a list-level scan to this document.
	Barcodes []string `yaml:"barcodes"`
}

type ScenarioDocItem struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Status string `yaml:"status"`
	// PosID is the position form opened when this item is picked.
	PosID string `yaml:"pos_id"`
}

type ScenarioPosition struct {
	ID         string `yaml:"id"`
	HeaderText string `yaml:"header"`
	// Expected codes are accepted; anything else gets an error response.
	Expected []string `yaml:"expected"`
}

// loadScenario reads the fixture, or falls back to the built-in demo. User
// passwords are bcrypt-hashed at load so handlers only ever compare hashes.
func loadScenario(path string) (*Scenario, error) {
	var s Scenario
	if path == "" {
		if err := yaml.Unmarshal([]byte(demoScenario), &s); err != nil {
			return nil, fmt.Errorf("parse built-in scenario: %w", err)
		}
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	for i := range s.Users {
		u := &s.Users[i]
		if u.PasswordHash == "" {
			hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
			if err != nil {
				return nil, fmt.Errorf("hash password for %s: %w", u.ID, err)
			}
			u.PasswordHash = string(hash)
		}
		u.Password = ""
	}
	return &s, nil
}

func (s *Scenario) user(id string) *ScenarioUser {
	for i := range s.Users {
		if s.Users[i].ID == id {
			return &s.Users[i]
		}
	}
	return nil
}

func (s *Scenario) userByBadge(badge string) *ScenarioUser {
	if badge == "" {
		return nil
	}
	for i := range s.Users {
		if s.Users[i].Badge == badge {
			return &s.Users[i]
		}
	}
	return nil
}

func (s *Scenario) document(id string) *ScenarioDocument {
	for i := range s.Documents {
		if s.Documents[i].ID == id {
			return &s.Documents[i]
		}
	}
	return nil
}

func (s *Scenario) documentByBarcode(code string) *ScenarioDocument {
	for i := range s.Documents {
		for _, b := range s.Documents[i].Barcodes {
			if b == code {
				return &s.Documents[i]
			}
		}
	}
	return nil
}

const demoScenario = `
users:
  - id: u1
    name: Иванов И.
    password: "1234"
    badge: BADGE-U1
  - id: u2
    name: Петров П.
    password: "1234"
tasks:
  - id: t1
    name: Приемка
    orders:
      - id: o1
        name: Заказ 1
        comment1: стеллаж 4
        status: pending
        doc_id: D1
      - id: o2
        name: Заказ 2
        status: closed
        doc_id: D2
documents:
  - id: D1
    header: Паллета 42
    status: pending
    status_text: В работе
    barcodes: ["4607001234567"]
    items:
      - id: i1
        name: Ряд 1
        pos_id: P1
      - id: i2
        name: Ряд 2
        pos_id: P2
    positions:
      - id: P1
        header: Ряд 1, место 1
        expected: ["4601234567890", "4609999999990"]
      - id: P2
        header: Ряд 2, место 1
        expected: ["4605555555550"]
  - id: D2
    header: Паллета 7
    status: closed
    status_text: Завершен
    items: []
    positions: []
`

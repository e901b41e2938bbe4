package memory

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/guidepath/guidepath/pkg/model"
)

// Fixtures is the customer data set loaded into a memory store. Keys follow the JSON field names
// of the models.
type Fixtures struct {
	Customers   []model.Customer           `json:"customers"`
	Contacts    []model.Contact            `json:"contacts"`
	Contracts   []model.Contract           `json:"contracts"`
	Renewals    []model.Renewal            `json:"renewals"`
	Operations  []model.Operation          `json:"operations"`
	Tickets     []model.SupportTicket      `json:"tickets"`
	Properties  []model.CustomerProperties `json:"properties"`
	Definitions []model.WorkflowDefinition `json:"definitions"`
}

// LoadFixtures reads a YAML fixtures file into the store.
func (s *Store) LoadFixtures(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read fixtures: %w", err)
	}

	// YAML is normalised through JSON so the models' json tags drive field names.
	var doc interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse fixtures: %w", err)
	}
	asJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("normalise fixtures: %w", err)
	}
	var fx Fixtures
	if err := json.Unmarshal(asJSON, &fx); err != nil {
		return fmt.Errorf("decode fixtures: %w", err)
	}

	s.Seed(fx)
	return nil
}

// Seed adds every record in fx. Records without an id get a fresh one.
func (s *Store) Seed(fx Fixtures) {
	for _, c := range fx.Customers {
		s.AddCustomer(c)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range fx.Contacts {
		c.ID = orNew(c.ID)
		s.data.contacts = append(s.data.contacts, c)
	}
	for _, c := range fx.Contracts {
		c.ID = orNew(c.ID)
		s.data.contracts = append(s.data.contracts, c)
	}
	for _, r := range fx.Renewals {
		r.ID = orNew(r.ID)
		s.data.renewals = append(s.data.renewals, r)
	}
	for _, op := range fx.Operations {
		op.ID = orNew(op.ID)
		s.data.operations = append(s.data.operations, op)
	}
	for _, t := range fx.Tickets {
		t.ID = orNew(t.ID)
		s.data.tickets = append(s.data.tickets, t)
	}
	for _, p := range fx.Properties {
		s.data.properties[p.CustomerID] = p
	}
	for _, d := range fx.Definitions {
		s.data.definitions[d.ID] = d
	}
}

func (s *Store) AddCustomer(c model.Customer) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = orNew(c.ID)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	s.data.customers[c.ID] = c
	return c.ID
}

func (s *Store) AddContact(c model.Contact) {
	s.Seed(Fixtures{Contacts: []model.Contact{c}})
}

func (s *Store) AddContract(c model.Contract) {
	s.Seed(Fixtures{Contracts: []model.Contract{c}})
}

func (s *Store) AddRenewal(r model.Renewal) {
	s.Seed(Fixtures{Renewals: []model.Renewal{r}})
}

func (s *Store) AddTicket(t model.SupportTicket) {
	s.Seed(Fixtures{Tickets: []model.SupportTicket{t}})
}

func (s *Store) SetProperties(p model.CustomerProperties) {
	s.Seed(Fixtures{Properties: []model.CustomerProperties{p}})
}

func orNew(id uuid.UUID) uuid.UUID {
	if id == uuid.Nil {
		return uuid.New()
	}
	return id
}

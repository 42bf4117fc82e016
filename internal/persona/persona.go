// Package persona holds the catalog of agent personas: for each demo
// business, its scheduling webhook and the two agents a caller can talk to.
//
// The catalog ships embedded in the binary and is resolved once at startup
// into a [Persona] that the rest of the program receives by value.
package persona

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embeddedCatalog []byte

// Agent keys.
const (
	AgentBooking  = "booking"
	AgentOverflow = "overflow"
)

// Languages.
const (
	LanguageEnglish = "en"
	LanguagePolish  = "pl"
)

var (
	ErrUnknownDemo     = errors.New("persona: unknown demo")
	ErrUnknownAgent    = errors.New("persona: unknown agent")
	ErrUnknownLanguage = errors.New("persona: unknown language")
)

// Persona is one fully resolved agent.
type Persona struct {
	// Demo is the catalog key, e.g. "rapidtire".
	Demo string

	// Business is the demo's display name, e.g. "RapidTire".
	Business string

	// Agent is "booking" or "overflow".
	Agent string

	// Name is the agent's display name in Language.
	Name string

	// Voice is the prebuilt voice name, e.g. "Zephyr".
	Voice string

	Language string

	// Instructions is the rendered system instruction.
	Instructions string

	// WebhookURL is the business's scheduling endpoint.
	WebhookURL string

	// Labels are the dashboard captions in Language.
	Labels Labels
}

// Labels are the captions of the end-of-call dashboard.
type Labels struct {
	DashboardTitle  string `yaml:"dashboard_title"`
	TotalCalls      string `yaml:"total_calls"`
	Bookings        string `yaml:"bookings"`
	Callbacks       string `yaml:"callbacks"`
	RecentBookings  string `yaml:"recent_bookings"`
	RecentCallbacks string `yaml:"recent_callbacks"`
	NoData          string `yaml:"no_data"`
}

// Catalog is a parsed persona catalog.
type Catalog struct {
	Demos map[string]Demo `yaml:"demos"`
}

// Demo is one business in the catalog.
type Demo struct {
	Name       string            `yaml:"name"`
	WebhookURL string            `yaml:"webhook_url"`
	Labels     map[string]Labels `yaml:"labels"`
	Agents     map[string]Agent  `yaml:"agents"`
}

// Agent is one agent definition. Name is keyed by language.
type Agent struct {
	Name         map[string]string `yaml:"name"`
	Voice        string            `yaml:"voice"`
	Instructions string            `yaml:"instructions"`
}

// LoadCatalog parses a catalog from r and validates that every agent's
// instructions are a valid template.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("persona: decode catalog: %w", err)
	}
	if len(c.Demos) == 0 {
		return nil, errors.New("persona: catalog has no demos")
	}
	var errs []error
	for _, dk := range slices.Sorted(maps.Keys(c.Demos)) {
		d := c.Demos[dk]
		if d.WebhookURL == "" {
			errs = append(errs, fmt.Errorf("persona: demo %s: webhook_url is required", dk))
		}
		for _, ak := range slices.Sorted(maps.Keys(d.Agents)) {
			a := d.Agents[ak]
			if a.Voice == "" {
				errs = append(errs, fmt.Errorf("persona: %s/%s: voice is required", dk, ak))
			}
			if _, err := template.New(dk + "/" + ak).Option("missingkey=error").Parse(a.Instructions); err != nil {
				errs = append(errs, fmt.Errorf("persona: %s/%s: instructions: %w", dk, ak, err))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadCatalogFile reads a catalog from disk.
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("persona: open catalog %q: %w", path, err)
	}
	defer f.Close()
	return LoadCatalog(f)
}

var defaultCatalog = sync.OnceValues(func() (*Catalog, error) {
	return LoadCatalog(bytes.NewReader(embeddedCatalog))
})

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() *Catalog {
	c, err := defaultCatalog()
	if err != nil {
		panic("persona: embedded catalog: " + err.Error())
	}
	return c
}

// Resolve resolves a persona from the embedded catalog.
func Resolve(demo, agent, lang string) (Persona, error) {
	return DefaultCatalog().Resolve(demo, agent, lang)
}

// Resolve looks up demo/agent and renders its instructions for lang.
func (c *Catalog) Resolve(demo, agent, lang string) (Persona, error) {
	d, ok := c.Demos[demo]
	if !ok {
		return Persona{}, fmt.Errorf("%w %q (have %s)", ErrUnknownDemo, demo, strings.Join(c.DemoKeys(), ", "))
	}
	a, ok := d.Agents[agent]
	if !ok {
		return Persona{}, fmt.Errorf("%w %q for demo %s", ErrUnknownAgent, agent, demo)
	}
	if lang != LanguageEnglish && lang != LanguagePolish {
		return Persona{}, fmt.Errorf("%w %q", ErrUnknownLanguage, lang)
	}

	tmpl, err := template.New(demo + "/" + agent).Option("missingkey=error").Parse(a.Instructions)
	if err != nil {
		return Persona{}, fmt.Errorf("persona: %s/%s: %w", demo, agent, err)
	}
	var buf strings.Builder
	if err := tmpl.Execute(&buf, struct{ Language string }{lang}); err != nil {
		return Persona{}, fmt.Errorf("persona: render %s/%s: %w", demo, agent, err)
	}

	name := a.Name[lang]
	if name == "" {
		name = a.Name[LanguageEnglish]
	}
	return Persona{
		Demo:         demo,
		Business:     d.Name,
		Agent:        agent,
		Name:         name,
		Voice:        a.Voice,
		Language:     lang,
		Instructions: strings.TrimSpace(buf.String()),
		WebhookURL:   d.WebhookURL,
		Labels:       d.Labels[lang],
	}, nil
}

// DemoKeys returns the demo keys in sorted order.
func (c *Catalog) DemoKeys() []string {
	return slices.Sorted(maps.Keys(c.Demos))
}

package composer

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/guidepath/guidepath/pkg/apperr"
	"github.com/guidepath/guidepath/pkg/model"
	"github.com/guidepath/guidepath/pkg/store"
	"github.com/guidepath/guidepath/pkg/store/memory"
)

type composeFixture struct {
	store      *memory.Store
	stages     *StageRegistry
	defs       *DefinitionRegistry
	composer   *Composer
	customerID uuid.UUID
}

func newComposeFixture(t *testing.T, extra ...Stage) *composeFixture {
	t.Helper()
	st := memory.New()
	customerID := st.AddCustomer(model.Customer{Name: "Acme", Tier: "smb", ARR: 120000, HealthScore: 72, OwnerID: "user-1"})
	st.AddContact(model.Contact{CustomerID: customerID, Name: "Dana Reyes", IsPrimary: true})

	stages := NewDefaultStageRegistry().MustRegister(extra...)
	defs := NewDefinitionRegistry()
	c := New(stages, defs, NewStoreCustomerData(st.Customers(), zap.NewNop()), zap.NewNop())
	return &composeFixture{store: st, stages: stages, defs: defs, composer: c, customerID: customerID}
}

func (f *composeFixture) addDefinition(t *testing.T, id string, refs ...model.StageRef) {
	t.Helper()
	require.NoError(t, f.defs.Add(model.WorkflowDefinition{ID: id, Name: "Renewal prep", Type: "renewal", Stages: refs}))
}

func TestHydratorResolvesPathsAndKeepsMisses(t *testing.T) {
	h, err := NewHydrator(map[string]interface{}{
		"customer": map[string]interface{}{"name": "Acme", "arr": 120000.0, "active": true},
		"contacts": []interface{}{map[string]interface{}{"name": "Dana"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello Acme", h.String("Hello {{customer.name}}"))
	assert.Equal(t, "{{missing.field}}", h.String("{{missing.field}}"))
	assert.Equal(t, "ARR 120000, active true", h.String("ARR {{ customer.arr }}, active {{customer.active}}"))
	assert.Equal(t, "Champion Dana", h.String("Champion {{contacts.0.name}}"))
	assert.Equal(t, "Hi Acme, {{customer.missing}}", h.String("Hi {{customer.name}}, {{customer.missing}}"))
}

func TestComposeHydratesSlides(t *testing.T) {
	f := newComposeFixture(t)
	f.addDefinition(t, "renewal-prep", model.StageRef{Stage: "welcome"}, model.StageRef{Stage: "stakeholders"})

	out, err := f.composer.Compose(context.Background(), ComposeInput{WorkflowID: "renewal-prep", CustomerID: f.customerID})
	require.NoError(t, err)
	require.Len(t, out.Slides, 2)
	assert.Equal(t, "Acme", out.Customer.Customer.Name)
	assert.Equal(t, "renewal-prep", out.Workflow.ID)

	welcome := out.Slides[0]
	assert.Equal(t, "Acme", welcome.Artifact.Sections[0].Title)
	initial, ok := welcome.Chat.Branch("initial")
	require.True(t, ok)
	assert.Equal(t, "Hi! Let's get Acme ready for Renewal prep.", initial.Response)

	champion, ok := out.Slides[1].Chat.Branch("initial")
	require.True(t, ok)
	assert.Equal(t, "Is Dana Reyes still the right champion at Acme?", champion.Response)
}

func TestComposeLeavesUnresolvedPlaceholders(t *testing.T) {
	f := newComposeFixture(t)
	f.addDefinition(t, "pricing", model.StageRef{Stage: "pricing"})

	out, err := f.composer.Compose(context.Background(), ComposeInput{WorkflowID: "pricing", CustomerID: f.customerID})
	require.NoError(t, err)
	require.Len(t, out.Slides, 1)

	confirm, ok := out.Slides[0].Chat.Branch("confirm")
	require.True(t, ok)
	assert.Equal(t, "Proposed {{variables.proposed_arr}}. I'll add it to the plan.", confirm.Response)
	assert.Equal(t, "Expected ARR {{renewal.expected_arr}}", out.Slides[0].Artifact.Sections[0].Content)

	out, err = f.composer.Compose(context.Background(), ComposeInput{
		WorkflowID: "pricing",
		CustomerID: f.customerID,
		Variables:  map[string]interface{}{"proposed_arr": 130000},
	})
	require.NoError(t, err)
	confirm, _ = out.Slides[0].Chat.Branch("confirm")
	assert.Equal(t, "Proposed 130000. I'll add it to the plan.", confirm.Response)
}

func TestComposeIsIdempotent(t *testing.T) {
	f := newComposeFixture(t)
	f.addDefinition(t, "renewal-prep",
		model.StageRef{Stage: "welcome"},
		model.StageRef{Stage: "account-overview"},
		model.StageRef{Stage: "risk-review"},
		model.StageRef{Stage: "action-plan"},
		model.StageRef{Stage: "summary"},
	)
	in := ComposeInput{WorkflowID: "renewal-prep", CustomerID: f.customerID, Variables: map[string]interface{}{"champion": "Dana"}}

	first, err := f.composer.Compose(context.Background(), in)
	require.NoError(t, err)
	second, err := f.composer.Compose(context.Background(), in)
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestComposeOverrideReplacesDefaultsWholesale(t *testing.T) {
	var seen Config
	probe := Stage{
		ID: "probe",
		DefaultConfig: Config{
			"title":  "Default",
			"labels": map[string]interface{}{"a": "1", "b": "2"},
		},
		Build: func(cfg Config) Slide {
			seen = cfg
			return Slide{ID: "probe", Stage: "probe", Title: cfg.String("title")}
		},
	}
	f := newComposeFixture(t, probe)
	f.addDefinition(t, "probe", model.StageRef{
		Stage:  "probe",
		Config: model.JSONB{"labels": map[string]interface{}{"a": "9"}},
	})

	out, err := f.composer.Compose(context.Background(), ComposeInput{WorkflowID: "probe", CustomerID: f.customerID})
	require.NoError(t, err)
	assert.Equal(t, "Default", out.Slides[0].Title)
	assert.Equal(t, map[string]interface{}{"a": "9"}, seen["labels"])
	assert.Equal(t, map[string]interface{}{"a": "1", "b": "2"}, probe.DefaultConfig["labels"])
}

func TestComposeUnknownStageIsConfigurationError(t *testing.T) {
	f := newComposeFixture(t)
	f.addDefinition(t, "broken", model.StageRef{Stage: "welcome"}, model.StageRef{Stage: "does-not-exist"})

	_, err := f.composer.Compose(context.Background(), ComposeInput{WorkflowID: "broken", CustomerID: f.customerID})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStageNotFound))
	assert.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))
}

func TestComposeMissingDefinitionOrCustomer(t *testing.T) {
	f := newComposeFixture(t)
	f.addDefinition(t, "renewal-prep", model.StageRef{Stage: "welcome"})

	_, err := f.composer.Compose(context.Background(), ComposeInput{WorkflowID: "nope", CustomerID: f.customerID})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDefinitionNotFound))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = f.composer.Compose(context.Background(), ComposeInput{WorkflowID: "renewal-prep", CustomerID: uuid.New()})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = f.composer.Compose(context.Background(), ComposeInput{WorkflowID: "renewal-prep"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestComposeWhenConditionOmitsStages(t *testing.T) {
	f := newComposeFixture(t)
	f.addDefinition(t, "renewal-prep",
		model.StageRef{Stage: "welcome"},
		model.StageRef{Stage: "pricing", When: `customer.tier == "enterprise"`},
		model.StageRef{Stage: "summary", When: `customer.health_score > 50`},
	)

	out, err := f.composer.Compose(context.Background(), ComposeInput{WorkflowID: "renewal-prep", CustomerID: f.customerID})
	require.NoError(t, err)
	ids := make([]string, 0, len(out.Slides))
	for _, s := range out.Slides {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"welcome", "summary"}, ids)
}

func TestComposeRejectsConfigFailingSchema(t *testing.T) {
	f := newComposeFixture(t)
	f.addDefinition(t, "pricing", model.StageRef{Stage: "pricing", Config: model.JSONB{"increase_cap": 500}})

	_, err := f.composer.Compose(context.Background(), ComposeInput{WorkflowID: "pricing", CustomerID: f.customerID})
	assert.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))

	err = f.composer.ValidateDefinition(&model.WorkflowDefinition{
		ID:     "pricing",
		Name:   "Pricing",
		Stages: model.StageRefs{{Stage: "pricing", Config: model.JSONB{"increase_cap": 500}}},
	})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	err = f.composer.ValidateDefinition(&model.WorkflowDefinition{
		ID:     "pricing",
		Name:   "Pricing",
		Stages: model.StageRefs{{Stage: "pricing", Config: model.JSONB{"increase_cap": 5}}, {Stage: "summary", When: "customer.arr >"}},
	})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

type flakyCustomers struct {
	store.CustomerRepository
}

func (flakyCustomers) Contacts(context.Context, uuid.UUID) ([]model.Contact, error) {
	return nil, errors.New("connection reset")
}

func TestComposeToleratesPartialCustomerData(t *testing.T) {
	f := newComposeFixture(t)
	f.addDefinition(t, "renewal-prep", model.StageRef{Stage: "stakeholders"})
	c := New(f.stages, f.defs, NewStoreCustomerData(flakyCustomers{f.store.Customers()}, zap.NewNop()), zap.NewNop())

	out, err := c.Compose(context.Background(), ComposeInput{WorkflowID: "renewal-prep", CustomerID: f.customerID})
	require.NoError(t, err)
	assert.Empty(t, out.Customer.Contacts)
	assert.Nil(t, out.Customer.Contract)

	initial, _ := out.Slides[0].Chat.Branch("initial")
	assert.Equal(t, "Is {{contacts.0.name}} still the right champion at Acme?", initial.Response)
}

func TestFallbackPrefersStaticDefinitions(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	require.NoError(t, st.Definitions().Save(ctx, &model.WorkflowDefinition{
		ID:     "stored",
		Name:   "Stored",
		Stages: model.StageRefs{{Stage: "summary"}},
	}))
	static := NewDefinitionRegistry()
	require.NoError(t, static.Add(model.WorkflowDefinition{ID: "static", Name: "Static", Stages: model.StageRefs{{Stage: "welcome"}}}))

	src := Fallback(static, NewStoredDefinitions(st.Definitions()))

	def, err := src.Definition(ctx, "static")
	require.NoError(t, err)
	assert.Equal(t, "Static", def.Name)

	def, err = src.Definition(ctx, "stored")
	require.NoError(t, err)
	assert.Equal(t, "Stored", def.Name)

	_, err = src.Definition(ctx, "missing")
	assert.True(t, errors.Is(err, ErrDefinitionNotFound))
}

func TestDefinitionRegistryLoadDir(t *testing.T) {
	dir := t.TempDir()
	doc := `id: onboarding
name: Onboarding
type: onboarding
stages:
  - stage: welcome
    config:
      title: Kickoff
  - stage: action-plan
    when: customer.tier != "smb"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "onboarding.yaml"), []byte(doc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644))

	reg := NewDefinitionRegistry()
	n, err := reg.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	def, err := reg.Definition(context.Background(), "onboarding")
	require.NoError(t, err)
	require.Len(t, def.Stages, 2)
	assert.Equal(t, "Kickoff", def.Stages[0].Config["title"])
	assert.Equal(t, `customer.tier != "smb"`, def.Stages[1].When)

	assert.Error(t, reg.LoadFile(filepath.Join(dir, "onboarding.yaml")))
}

func TestStageRegistryRejectsDuplicates(t *testing.T) {
	reg := NewStageRegistry()
	stage := Stage{ID: "x", Build: func(Config) Slide { return Slide{} }}
	require.NoError(t, reg.Register(stage))
	assert.Error(t, reg.Register(stage))
	assert.Panics(t, func() { reg.MustRegister(stage) })

	_, err := reg.Lookup("y")
	assert.True(t, errors.Is(err, ErrStageNotFound))

	assert.Error(t, reg.Register(Stage{ID: "bad-schema", Schema: "{", Build: stage.Build}))
}

func TestRenderBranchDoesNotExpandCustomerText(t *testing.T) {
	echo := Stage{
		ID: "echo",
		Build: func(Config) Slide {
			return Slide{ID: "echo", Stage: "echo", Chat: Chat{
				InitialBranch: "initial",
				Branches: map[string]Branch{
					"initial": {
						ID:       "initial",
						Response: "Note from {{customer.name}}: {{variables.note}}",
						Buttons:  []Button{{Label: "Keep {{variables.note}}", Value: "keep"}},
						Generate: &Generate{Prompt: "Summarise {{customer.name}} and {{variables.note}}"},
					},
				},
			}}
		},
	}
	f := newComposeFixture(t, echo)
	f.addDefinition(t, "echo", model.StageRef{Stage: "echo"})
	customerID := f.store.AddCustomer(model.Customer{Name: "Evil {{variables.note}}"})

	out, err := f.composer.Compose(context.Background(), ComposeInput{WorkflowID: "echo", CustomerID: customerID})
	require.NoError(t, err)
	require.Len(t, out.Slides, 1)

	b, err := out.Slides[0].RenderBranch("initial", map[string]interface{}{"note": "renew early"})
	require.NoError(t, err)
	assert.Equal(t, "Note from Evil {{variables.note}}: renew early", b.Response)
	assert.Equal(t, "Keep renew early", b.Buttons[0].Label)
	assert.Equal(t, "Summarise Evil {{variables.note}} and renew early", b.Generate.Prompt)

	composed, ok := out.Slides[0].Chat.Branch("initial")
	require.True(t, ok)
	assert.Equal(t, "Keep {{variables.note}}", composed.Buttons[0].Label)

	_, err = out.Slides[0].RenderBranch("missing", nil)
	assert.Error(t, err)
}

func TestRenderBranchOnHandBuiltSlide(t *testing.T) {
	slide := Slide{ID: "s", Chat: Chat{Branches: map[string]Branch{
		"initial": {Response: "Proposed {{variables.arr}}, owner {{customer.owner_id}}"},
	}}}

	b, err := slide.RenderBranch("initial", map[string]interface{}{"arr": 130000})
	require.NoError(t, err)
	assert.Equal(t, "initial", b.ID)
	assert.Equal(t, "Proposed 130000, owner {{customer.owner_id}}", b.Response)
}

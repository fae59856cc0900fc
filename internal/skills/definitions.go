package skills

import (
	"fmt"

	"github.com/andresmedinaorbidi/clarity/internal/generate"
	"github.com/andresmedinaorbidi/clarity/internal/provenance"
)

// Definitions returns the metadata of the built-in pipeline.
func Definitions() []Skill {
	return []Skill{
		{
			ID:               Intake,
			DisplayName:      "Intake & Audit",
			Description:      "Checks that the required project information is present",
			Icon:             "📋",
			RequiresApproval: true,
			AutoExecute:      true,
			SuggestedNext:    Research,
			GateName:         "INTAKE_&_AUDIT",
			Artifact:         provenance.KeyProjectBrief,
			Constraint:       "Ask for every missing field in one message. Do not ask for fields that are already provided or inferred. When nothing is missing, ask whether to proceed.",
		},
		{
			ID:                Research,
			DisplayName:       "Market Researcher",
			Description:       "Analyzes the business, its market and competitors",
			Icon:              "🔬",
			TriggerPhrases:    []string{"research", "analyze my market", "competitors"},
			CanInvokeDirectly: true,
			AutoExecute:       true,
			SuggestedNext:     Strategy,
			RevisionSupported: true,
			Artifact:          provenance.KeyResearchData,
			Constraint:        "Research is complete. Summarize what was learned and ask whether to continue.",
		},
		{
			ID:                Strategy,
			DisplayName:       "Business Strategist",
			Description:       "Defines business goals, target audience and success metrics",
			Icon:              "🎯",
			TriggerPhrases:    []string{"strategy", "business goals"},
			CanInvokeDirectly: true,
			RequiresApproval:  true,
			AutoExecute:       true,
			SuggestedNext:     UX,
			Prerequisites:     []ID{Research},
			RevisionSupported: true,
			GateName:          "DIRECTION",
			Artifact:          provenance.KeyStrategy,
			Constraint:        "The strategic direction is ready. Ask the user to approve it before design work starts.",
		},
		{
			ID:                UX,
			DisplayName:       "UX Designer",
			Description:       "Maps user personas, pain points and conversion paths",
			Icon:              "🎨",
			TriggerPhrases:    []string{"personas", "user journey", "ux design"},
			CanInvokeDirectly: true,
			AutoExecute:       true,
			SuggestedNext:     Planning,
			Prerequisites:     []ID{Strategy},
			RevisionSupported: true,
			Artifact:          provenance.KeyUXStrategy,
			Constraint:        "User experience mapped. The page structure is being created.",
		},
		{
			ID:                Planning,
			DisplayName:       "Sitemap Architect",
			Description:       "Designs the website structure with pages and sections",
			Icon:              "🏗️",
			TriggerPhrases:    []string{"sitemap", "site structure", "blueprint"},
			CanInvokeDirectly: true,
			RequiresApproval:  true,
			AutoExecute:       true,
			SuggestedNext:     SEO,
			Prerequisites:     []ID{Strategy},
			RevisionSupported: true,
			GateName:          "BLUEPRINT",
			Artifact:          provenance.KeySitemap,
			Constraint:        "The blueprint is ready. Ask the user to review it and approve to start building.",
		},
		{
			ID:                SEO,
			DisplayName:       "SEO Specialist",
			Description:       "Produces keywords, meta titles and meta descriptions",
			Icon:              "🔍",
			TriggerPhrases:    []string{"seo", "keywords", "meta description"},
			CanInvokeDirectly: true,
			AutoExecute:       true,
			SuggestedNext:     Copywriting,
			Prerequisites:     []ID{Planning},
			RevisionSupported: true,
			Artifact:          provenance.KeySEOData,
			Constraint:        "SEO optimization is complete. Marketing content is being written.",
		},
		{
			ID:                Copywriting,
			DisplayName:       "Copywriter",
			Description:       "Writes section headlines, subheaders and calls to action",
			Icon:              "✍️",
			TriggerPhrases:    []string{"copywriting", "headlines", "write the content"},
			CanInvokeDirectly: true,
			RequiresApproval:  true,
			AutoExecute:       true,
			SuggestedNext:     PRD,
			Prerequisites:     []ID{Planning},
			RevisionSupported: true,
			GateName:          "MARKETING",
			Artifact:          provenance.KeyCopywriting,
			Constraint:        "Marketing content is ready. Ask the user to approve it before technical planning.",
		},
		{
			ID:                PRD,
			DisplayName:       "Technical Strategist",
			Description:       "Writes the technical requirements and implementation plan",
			Icon:              "📄",
			TriggerPhrases:    []string{"prd", "technical spec", "requirements document"},
			CanInvokeDirectly: true,
			AutoExecute:       true,
			SuggestedNext:     Building,
			Prerequisites:     []ID{Planning, Copywriting},
			RevisionSupported: true,
			Artifact:          provenance.KeyPRDDocument,
			Constraint:        "Technical specifications are ready. Ask whether to start the build.",
		},
		{
			ID:                Building,
			DisplayName:       "Code Builder",
			Description:       "Generates the website's HTML and CSS",
			Icon:              "🚀",
			TriggerPhrases:    []string{"build the site", "generate code", "build it"},
			CanInvokeDirectly: true,
			Prerequisites:     []ID{PRD},
			RevisionSupported: true,
			Artifact:          provenance.KeyGeneratedCode,
			Constraint:        "The website is being built. This may take a moment.",
		},
	}
}

// newRunner returns the runner variant for a built-in skill.
func newRunner(s Skill, model generate.Model) (Runner, error) {
	switch s.ID {
	case Intake:
		return &IntakeRunner{Skill: s}, nil
	case Research:
		return &ResearchRunner{Document: DocumentRunner{Skill: s, Model: model, Instruction: researchInstruction}}, nil
	case Strategy:
		return &DocumentRunner{Skill: s, Model: model, Instruction: strategyInstruction}, nil
	case UX:
		return &DocumentRunner{Skill: s, Model: model, Instruction: uxInstruction}, nil
	case Planning:
		return &DocumentRunner{Skill: s, Model: model, Instruction: planningInstruction}, nil
	case SEO:
		return &DocumentRunner{Skill: s, Model: model, Instruction: seoInstruction}, nil
	case Copywriting:
		return &DocumentRunner{Skill: s, Model: model, Instruction: copyInstruction}, nil
	case PRD:
		return &DocumentRunner{Skill: s, Model: model, Instruction: prdInstruction}, nil
	case Building:
		return &DocumentRunner{Skill: s, Model: model, Instruction: buildInstruction}, nil
	default:
		return nil, fmt.Errorf("%w: no runner for %s", ErrUnknownSkill, s.ID)
	}
}

// NewDefaultCatalog registers the built-in pipeline with runners backed by
// model and validates it.
func NewDefaultCatalog(model generate.Model) (*Catalog, error) {
	c := NewCatalog(NominalPhases())
	for _, s := range Definitions() {
		r, err := newRunner(s, model)
		if err != nil {
			return nil, err
		}
		if err := c.Register(s, r); err != nil {
			return nil, err
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

const (
	researchInstruction = `Research this business: its market, typical customers and two or three competitors.
Finish with a JSON object on its own line of the form
{"inferred": {"<field>": {"value": "...", "confidence": 0.0, "rationale": "..."}}}
listing any of industry, audience, offer, tone, design_style or location you can infer.`
	strategyInstruction = `Define the business goals, primary audience and success metrics for the website.`
	uxInstruction       = `Describe two user personas, their pain points and the conversion path through the site.`
	planningInstruction = `Design the sitemap: list each page with its purpose and ordered sections.`
	seoInstruction      = `Produce target keywords plus a meta title and meta description for each page in the sitemap.`
	copyInstruction     = `Write the headline, subheader and call to action for every section in the sitemap.`
	prdInstruction      = `Write a technical product requirements document for building this website.`
	buildInstruction    = `Generate a single-file HTML page with embedded CSS that implements the plan.`
)

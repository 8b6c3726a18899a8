package service

import (
	"strings"

	"github.com/spec-kit/itsm-core/internal/domain"
)

// Ticket categories produced by the classifier.
const (
	CategoryNetwork  = "Network"
	CategoryHardware = "Hardware"
	CategorySoftware = "Software"
	CategoryAccess   = "Access"
	CategoryEmail    = "Email"
	CategoryOther    = "Other"
)

// Classification is the routing decision for a normalized submission.
type Classification struct {
	Category     string
	Workflow     domain.WorkflowType
	Confidence   float64
	ManualTriage bool
}

// ClassifierInput carries the normalized text and optional hints.
type ClassifierInput struct {
	Title        string
	Description  string
	CategoryHint string
	TypeHint     string
	Priority     domain.TicketPriority
}

type categoryRule struct {
	category string
	keywords []string
	weight   float64
}

type workflowRule struct {
	workflow   domain.WorkflowType
	weight     float64
	hint       string
	categories []string
	priorities []domain.TicketPriority
	cues       []string
}

// Ordered rule tables. Keyword sets may overlap; table order is the
// tie-break, first match wins.
var categoryRules = []categoryRule{
	{category: CategoryNetwork, weight: 3, keywords: []string{"network", "wifi", "wi-fi", "internet", "vpn", "dns", "ethernet", "router", "connectivity", "connect"}},
	{category: CategoryHardware, weight: 3, keywords: []string{"laptop", "desktop", "printer", "monitor", "keyboard", "mouse", "hardware", "disk", "battery", "screen", "dock"}},
	{category: CategorySoftware, weight: 2.5, keywords: []string{"software", "application", "install", "upgrade", "license", "crash", "browser", "update", "excel", "version"}},
	{category: CategoryAccess, weight: 2.5, keywords: []string{"password", "login", "log in", "access", "account", "permission", "locked", "mfa", "credential"}},
	{category: CategoryEmail, weight: 2, keywords: []string{"email", "outlook", "mailbox", "smtp", "calendar", "inbox"}},
}

var workflowRules = []workflowRule{
	{workflow: domain.WorkflowChange, weight: 3, hint: "change"},
	{workflow: domain.WorkflowIncident, weight: 3, hint: "incident"},
	{workflow: domain.WorkflowProblem, weight: 3, hint: "problem"},
	{workflow: domain.WorkflowRequest, weight: 3, hint: "request"},
	{
		workflow:   domain.WorkflowIncident,
		weight:     3,
		categories: []string{CategoryNetwork},
		priorities: []domain.TicketPriority{domain.TicketPriorityHigh, domain.TicketPriorityCritical},
		cues:       []string{"outage", "down", "unreachable", "offline", "cannot connect", "no internet", "not working"},
	},
	{
		workflow: domain.WorkflowProblem,
		weight:   2.5,
		cues:     []string{"recurring", "root cause", "keeps happening", "intermittent", "every time"},
	},
	{
		workflow: domain.WorkflowRequest,
		weight:   2,
		cues:     []string{"request", "install", "provision", "new laptop", "need access", "access to", "set up", "would like"},
	},
	{
		workflow: domain.WorkflowChange,
		weight:   2,
		cues:     []string{"change request", "schedule change", "migration", "maintenance window", "rollout"},
	},
	// Fallback: everything else is generic service desk work.
	{workflow: domain.WorkflowServiceDesk, weight: 1},
}

// Classifier maps normalized text and hints onto a category, target workflow
// and confidence score. Evaluation is table-driven and fully deterministic:
// identical input always yields identical output.
type Classifier struct {
	threshold float64
}

// NewClassifier builds a classifier with the manual-triage threshold.
func NewClassifier(threshold float64) *Classifier {
	if threshold <= 0 {
		threshold = 0.6
	}
	return &Classifier{threshold: threshold}
}

// Classify routes the submission. Below-threshold confidence never fails:
// the ticket is forced onto the ServiceDesk workflow and flagged for manual
// triage instead.
func (c *Classifier) Classify(in ClassifierInput) Classification {
	text := strings.ToLower(strings.TrimSpace(in.Title) + " " + strings.TrimSpace(in.Description))

	category, catMatched, catEvaluated := classifyCategory(text, in.CategoryHint)
	wfType, flowMatched, flowEvaluated := routeWorkflow(text, category, in.Priority, in.TypeHint)

	confidence := 0.0
	if catEvaluated+flowEvaluated > 0 {
		confidence = (catMatched + flowMatched) / (catEvaluated + flowEvaluated)
	}
	confidence = clamp01(confidence)

	result := Classification{Category: category, Workflow: wfType, Confidence: confidence}
	if confidence < c.threshold {
		result.Workflow = domain.WorkflowServiceDesk
		result.ManualTriage = true
	}
	return result
}

// Threshold returns the configured manual-triage threshold.
func (c *Classifier) Threshold() float64 {
	return c.threshold
}

// classifyCategory returns the category plus the matched and evaluated rule
// weights. Confidence rewards matches on earlier, more specific rules: the
// denominator accumulates every rule weighed before the match.
func classifyCategory(text, hint string) (string, float64, float64) {
	if hint != "" {
		for _, rule := range categoryRules {
			if strings.EqualFold(rule.category, hint) {
				return rule.category, rule.weight, rule.weight
			}
		}
		return strings.TrimSpace(hint), 1, 1
	}
	evaluated := 0.0
	for _, rule := range categoryRules {
		evaluated += rule.weight
		for _, keyword := range rule.keywords {
			if strings.Contains(text, keyword) {
				return rule.category, rule.weight, evaluated
			}
		}
	}
	return CategoryOther, 0, evaluated
}

func routeWorkflow(text, category string, priority domain.TicketPriority, hint string) (domain.WorkflowType, float64, float64) {
	evaluated := 0.0
	for _, rule := range workflowRules {
		// Hint rules only apply when the caller supplied that exact hint;
		// they do not dilute confidence otherwise.
		if rule.hint != "" {
			if !strings.EqualFold(rule.hint, hint) {
				continue
			}
			return rule.workflow, rule.weight, evaluated + rule.weight
		}
		evaluated += rule.weight
		if rule.matches(text, category, priority) {
			return rule.workflow, rule.weight, evaluated
		}
	}
	return domain.WorkflowServiceDesk, 0, evaluated
}

func (r workflowRule) matches(text, category string, priority domain.TicketPriority) bool {
	if len(r.categories) > 0 && !containsString(r.categories, category) {
		return false
	}
	if len(r.priorities) > 0 && !containsPriority(r.priorities, priority) {
		return false
	}
	if len(r.cues) > 0 {
		found := false
		for _, cue := range r.cues {
			if strings.Contains(text, cue) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func containsString(set []string, value string) bool {
	for _, s := range set {
		if s == value {
			return true
		}
	}
	return false
}

func containsPriority(set []domain.TicketPriority, value domain.TicketPriority) bool {
	for _, p := range set {
		if p == value {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

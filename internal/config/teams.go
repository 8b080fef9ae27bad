package config

import (
	"fmt"

	"github.com/forgeai/forge/internal/configtree"
	"github.com/forgeai/forge/internal/ferr"
)

// LoadTeamGraph parses the teams.* subtree of an effective config into a
// TeamGraph. Expected shape:
//
//	orchestration:
//	  entry_team: discovery
//	  fallback_team: fallback
//	  max_teams: 10
//	teams:
//	  discovery:
//	    display_name: Discovery
//	    tasks:
//	      - task_name: scan
//	        agent_kind: discovery
//	        max_retries: 0
//	    routing:
//	      default: solution
func LoadTeamGraph(effective configtree.Node) (*TeamGraph, error) {
	teamsNode := effective.Get("teams")
	if teamsNode.IsAbsent() || !teamsNode.IsMap() {
		return nil, ferr.New(ferr.KindConfig, "config", "LoadTeamGraph", "teams section is missing or not a map", nil)
	}

	graph := &TeamGraph{
		Teams:     make(map[string]*TeamDef, len(teamsNode.Fields())),
		EntryTeam: effective.Get("orchestration.entry_team").String(),
		Fallback:  effective.Get("orchestration.fallback_team").String(),
	}

	for _, teamID := range teamsNode.Fields() {
		def, err := parseTeamDef(teamID, teamsNode.Get(teamID))
		if err != nil {
			return nil, err
		}
		graph.Teams[teamID] = def
	}

	if graph.EntryTeam == "" {
		return nil, ferr.New(ferr.KindConfig, "config", "LoadTeamGraph", "orchestration.entry_team is required", nil)
	}
	if _, ok := graph.Teams[graph.EntryTeam]; !ok {
		return nil, ferr.New(ferr.KindConfig, "config", "LoadTeamGraph",
			fmt.Sprintf("entry_team %q is not defined", graph.EntryTeam), nil)
	}
	return graph, nil
}

func parseTeamDef(teamID string, node configtree.Node) (*TeamDef, error) {
	if !node.IsMap() {
		return nil, ferr.New(ferr.KindConfig, "config", "parseTeamDef",
			fmt.Sprintf("team %q definition must be a map", teamID), nil)
	}

	def := &TeamDef{
		TeamID:      teamID,
		DisplayName: node.Get("display_name").String(),
	}
	if def.DisplayName == "" {
		def.DisplayName = teamID
	}

	tasksNode := node.Get("tasks")
	if tasksNode.IsList() {
		for _, taskNode := range tasksNode.Items() {
			task, err := parseTaskSpec(teamID, taskNode)
			if err != nil {
				return nil, err
			}
			def.Tasks = append(def.Tasks, task)
		}
	}

	routingNode := node.Get("routing")
	if routingNode.IsMap() {
		def.Routing.Default = routingNode.Get("default").String()
		rulesNode := routingNode.Get("rules")
		if rulesNode.IsList() {
			for _, r := range rulesNode.Items() {
				def.Routing.Rules = append(def.Routing.Rules, RoutingRule{
					Condition: r.Get("condition").String(),
					NextTeam:  r.Get("next_team").String(),
				})
			}
		}
	}

	return def, nil
}

func parseTaskSpec(teamID string, node configtree.Node) (TaskSpec, error) {
	if !node.IsMap() {
		return TaskSpec{}, ferr.New(ferr.KindConfig, "config", "parseTaskSpec",
			fmt.Sprintf("team %q has a non-map task entry", teamID), nil)
	}
	agentKind := node.Get("agent_kind").String()
	if agentKind == "" {
		return TaskSpec{}, ferr.New(ferr.KindConfig, "config", "parseTaskSpec",
			fmt.Sprintf("team %q task is missing agent_kind", teamID), nil)
	}
	taskName := node.Get("task_name").String()
	if taskName == "" {
		taskName = agentKind
	}
	maxRetries, _ := node.Get("max_retries").Int()
	retryDelay, _ := node.Get("retry_delay_seconds").Int()
	approval, _ := node.Get("requires_approval").Bool()

	return TaskSpec{
		TaskName:          taskName,
		AgentKind:         agentKind,
		RequiresApproval:  approval,
		MaxRetries:        maxRetries,
		RetryDelaySeconds: retryDelay,
		Overlay:           node.Get("config"),
	}, nil
}

// MaxTeams returns orchestration.max_teams, defaulting to 10.
func MaxTeams(effective configtree.Node) int {
	if n, ok := effective.Get("orchestration.max_teams").Int(); ok {
		return n
	}
	return 10
}

// RetryTeams reports whether orchestration.error_handling.retry_teams is set.
func RetryTeams(effective configtree.Node) bool {
	b, _ := effective.Get("orchestration.error_handling.retry_teams").Bool()
	return b
}

// TeamMaxRetries returns orchestration.error_handling.max_retries, defaulting to 1.
func TeamMaxRetries(effective configtree.Node) int {
	if n, ok := effective.Get("orchestration.error_handling.max_retries").Int(); ok {
		return n
	}
	return 1
}

// ApprovalGateEnabled reports whether orchestration.approval_gate_enabled is
// set. Automated execution is the default, so a task with requires_approval
// still runs straight through unless the service opts into gating.
func ApprovalGateEnabled(effective configtree.Node) bool {
	b, _ := effective.Get("orchestration.approval_gate_enabled").Bool()
	return b
}

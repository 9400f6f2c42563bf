package notify

import (
	"github.com/clustercheck/clustercheck/pkg/checkdef"
	"github.com/clustercheck/clustercheck/pkg/verdict"
)

// Placeholder marks runbook and tip values that were never filled in.
const Placeholder = "-"

// BuildPayload assembles the event forwarded to the local monitoring client.
// The target check's fields form the base; routing fields come from the
// cluster check so that alerts reach the team owning the aggregate.
func BuildPayload(target, cluster checkdef.Definition, clusterName, checkName string, status verdict.Status, output string) (map[string]interface{}, error) {
	payload, err := target.Fields()
	if err != nil {
		return nil, err
	}
	delete(payload, "command")

	payload["status"] = status.ExitCode()
	payload["output"] = output
	payload["source"] = clusterName
	payload["name"] = checkName
	payload["page"] = cluster.Page
	payload["team"] = cluster.Team
	payload["notification_email"] = cluster.NotificationEmail
	payload["irc_channels"] = cluster.IRCChannels

	if cluster.Runbook != "" && cluster.Runbook != Placeholder {
		payload["runbook"] = cluster.Runbook
	} else {
		delete(payload, "runbook")
	}
	if cluster.Tip != "" && cluster.Tip != Placeholder {
		payload["tip"] = cluster.Tip
	} else {
		delete(payload, "tip")
	}
	return payload, nil
}

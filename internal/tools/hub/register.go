package hub

import (
	"log"

	"github.com/mark3labs/mcp-go/server"

	"github.com/jaakkos/synapse/internal/app"
	"github.com/jaakkos/synapse/internal/cascade"
	"github.com/jaakkos/synapse/internal/docsession"
	"github.com/jaakkos/synapse/internal/worldstate"
)

// Deps carries the engines the tool families dispatch into.
type Deps struct {
	Service  *app.HubService
	Registry *app.SessionRegistry
	Docs     *docsession.Manager
	World    *worldstate.Engine
	Archive  *worldstate.Archive
	Cascade  *cascade.Engine
	Logger   *log.Logger
}

// Register registers every coordination tool with the mcp-go server.
func Register(s *server.MCPServer, d Deps) {
	// Workspace tools (6)
	registerJoinWorkspace(s, d.Service, d.Logger, d.Registry)
	registerSetTarget(s, d.Service, d.Logger, d.Registry)
	registerGetTarget(s, d.Service, d.Registry)
	registerListAgents(s, d.Service, d.Registry)
	registerPostIntent(s, d.Service, d.Logger, d.Registry)
	registerReadIntents(s, d.Service, d.Registry)

	// Lock tools (5)
	registerLockFile(s, d.Service, d.Logger, d.Registry)
	registerRenewLock(s, d.Service, d.Logger, d.Registry)
	registerCheckLocks(s, d.Service, d.Registry)
	registerUnlockFile(s, d.Service, d.Logger, d.Registry)
	registerForceUnlock(s, d.Service, d.Logger, d.Registry)

	// Work queue tools (4)
	registerAddWork(s, d.Service, d.Logger, d.Registry)
	registerPollWork(s, d.Service, d.Logger, d.Registry, d.World)
	registerClaimWork(s, d.Service, d.Logger, d.Registry)
	registerCompleteWork(s, d.Service, d.Logger, d.Registry, d.World)

	// Doc session tools (3)
	registerCreateDoc(s, d.Service, d.Logger, d.Registry, d.Docs)
	registerGetDoc(s, d.Registry, d.Docs)
	registerListDocSessions(s, d.Registry, d.Docs)

	// World-state tools (6)
	registerApplyPatch(s, d.Logger, d.Registry, d.World)
	registerAssertFact(s, d.Logger, d.Registry, d.World)
	registerReportFailure(s, d.Logger, d.Registry, d.World)
	registerResolveConflict(s, d.Logger, d.Registry, d.World)
	registerGetWorldState(s, d.Registry, d.World)
	if d.Archive != nil {
		registerSearchObservations(s, d.Registry, d.Archive)
	}

	// Goal tools (3)
	registerProposeGoal(s, d.Logger, d.Registry, d.World)
	registerEvaluateGoal(s, d.Registry, d.World)
	registerEnqueueWork(s, d.Logger, d.Registry, d.World)

	// Contract tools (5)
	registerRegisterContract(s, d.Logger, d.Registry, d.Cascade)
	registerBindFrontend(s, d.Logger, d.Registry, d.Cascade)
	registerGetOutdatedComponents(s, d.Registry, d.Cascade)
	registerMarkBindingSynced(s, d.Logger, d.Registry, d.Cascade)
	registerGetCascadeLog(s, d.Registry, d.Cascade)

	// Merge session tools (3)
	registerJoinFileSession(s, d.Logger, d.Registry, d.Cascade)
	registerLeaveFileSession(s, d.Logger, d.Registry, d.Cascade)
	registerProposeChange(s, d.Logger, d.Registry, d.Cascade)
}

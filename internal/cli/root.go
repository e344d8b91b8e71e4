package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/advocatech/lexsync/internal/models"
)

// collectionEntity maps store collections to their audit entity names.
var collectionEntity = map[string]models.Entity{
	"clientes":   models.EntityCliente,
	"processos":  models.EntityProcesso,
	"documentos": models.EntityDocumento,
	"leads":      models.EntityLead,
	"mensagens":  models.EntityMensagem,
	"agenda":     models.EntityAgenda,
	"financeiro": models.EntityFinanceiro,
}

func entityFor(collection string) models.Entity {
	if e, ok := collectionEntity[collection]; ok {
		return e
	}
	return models.EntitySistema
}

func (a *App) getStatus() string {
	if a.monitor.Online() {
		return "online"
	}
	return "offline"
}

func (a *App) Root(ctx context.Context) {
	fmt.Println("lexsync console (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Printf("lexsync (%s)> ", a.getStatus())
		if !scanner.Scan() {
			break
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		cmd := parts[0]
		args := parts[1:]

		switch cmd {
		case "help":
			fmt.Println("Store:  save <collection> <json> | get <collection> <id> | list <collection> [n]")
			fmt.Println("        find <collection> <index> <value> | del <collection> <id>")
			fmt.Println("Sync:   status | sync | queue | cleanup")
			fmt.Println("Audit:  audit [n] | verify <event-id> | trees [n] | verify-tree <id>")
			fmt.Println("        consolidate | rollup | summary [from] [to]")
			fmt.Println("Other:  exit")

		case "status":
			a.showStatus(ctx)
		case "sync":
			a.engine.Sync(ctx)
			a.showStatus(ctx)
		case "queue":
			a.showQueue(ctx)
		case "cleanup":
			a.cleanup(ctx)

		case "save":
			a.save(ctx, args)
		case "get":
			a.get(ctx, args)
		case "list":
			a.list(ctx, args)
		case "find":
			a.find(ctx, args)
		case "del":
			a.del(ctx, args)

		case "audit":
			a.auditList(ctx, args)
		case "verify":
			a.verifyEvent(ctx, args)
		case "trees":
			a.listTrees(ctx, args)
		case "verify-tree":
			a.verifyTree(ctx, args)
		case "consolidate":
			a.consolidate(ctx)
		case "rollup":
			a.rollup(ctx)
		case "summary":
			a.summary(ctx, args)

		case "exit", "quit":
			fmt.Println("Bye!")
			return

		default:
			fmt.Printf("unknown command %q, type 'help'\n", cmd)
		}
	}
}

func (a *App) showStatus(ctx context.Context) {
	status, err := a.engine.Status(ctx)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("connectivity: %s\n", a.getStatus())
	fmt.Printf("engine: %s", status.State)
	if status.LastResult != "" {
		fmt.Printf(", last run %s at %s", status.LastResult, status.LastSyncAt.Format("15:04:05"))
	}
	fmt.Println()
	if status.LastError != "" {
		fmt.Printf("last error: %s\n", status.LastError)
	}
	fmt.Printf("queue: %d pending, %d completed, %d failed\n",
		status.Counts.Pending, status.Counts.Completed, status.Counts.Failed)
	if calls, err := a.usage.Value(ctx); err == nil {
		fmt.Printf("api calls today: %d\n", calls)
	}
}

func (a *App) showQueue(ctx context.Context) {
	status, err := a.engine.Status(ctx)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("pending: %d  completed: %d  failed: %d\n",
		status.Counts.Pending, status.Counts.Completed, status.Counts.Failed)
}

func (a *App) cleanup(ctx context.Context) {
	purged, err := a.engine.Cleanup(ctx)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("purged %d completed entries\n", purged)
}

func (a *App) save(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Println("usage: save <collection> <json>")
		return
	}
	collection := args[0]

	var data map[string]any
	if err := json.Unmarshal([]byte(strings.Join(args[1:], " ")), &data); err != nil {
		fmt.Println("invalid json:", err)
		return
	}

	_, existed := data["id"]
	rec, err := a.store.Save(ctx, collection, data, models.DurabilityLocalAndQueue)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("saved %s/%s\n", collection, rec.ID)

	eventType := models.EventCreate
	if existed {
		eventType = models.EventUpdate
	}
	if _, err := a.audit.Record(ctx, eventType, entityFor(collection), rec.ID, rec.Data); err != nil {
		fmt.Println("warning: audit record failed:", err)
	}
	a.merkle.Notify()
}

func (a *App) get(ctx context.Context, args []string) {
	if len(args) != 2 {
		fmt.Println("usage: get <collection> <id>")
		return
	}
	rec, err := a.store.Get(ctx, args[0], args[1])
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	printRecord(rec)
}

func (a *App) list(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Println("usage: list <collection> [n]")
		return
	}
	limit := 20
	if len(args) > 1 {
		if n, err := strconv.Atoi(args[1]); err == nil {
			limit = n
		}
	}
	recs, err := a.store.GetAll(ctx, args[0], limit)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	for i := range recs {
		printRecord(&recs[i])
	}
	fmt.Printf("%d record(s)\n", len(recs))
}

func (a *App) find(ctx context.Context, args []string) {
	if len(args) != 3 {
		fmt.Println("usage: find <collection> <index> <value>")
		return
	}
	recs, err := a.store.QueryByIndex(ctx, args[0], args[1], args[2])
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	for i := range recs {
		printRecord(&recs[i])
	}
	fmt.Printf("%d record(s)\n", len(recs))
}

func (a *App) del(ctx context.Context, args []string) {
	if len(args) != 2 {
		fmt.Println("usage: del <collection> <id>")
		return
	}
	collection, id := args[0], args[1]
	if err := a.store.Delete(ctx, collection, id, models.DurabilityLocalAndQueue); err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("deleted %s/%s\n", collection, id)

	if _, err := a.audit.Record(ctx, models.EventDelete, entityFor(collection), id, nil); err != nil {
		fmt.Println("warning: audit record failed:", err)
	}
	a.merkle.Notify()
}

func (a *App) auditList(ctx context.Context, args []string) {
	limit := 20
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			limit = n
		}
	}
	events, err := a.audit.Search(ctx, models.AuditFilter{}, models.SearchOptions{Limit: limit})
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	for _, e := range events {
		consolidated := " "
		if e.MerkleTreeID != "" {
			consolidated = "*"
		}
		fmt.Printf("%s %s  %-8s %-10s %-36s %s\n",
			consolidated, e.Timestamp.Format("2006-01-02 15:04:05"), e.EventType, e.Entity, e.ID, e.EntityID)
	}
	fmt.Printf("%d event(s), * = consolidated\n", len(events))
}

func (a *App) verifyEvent(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: verify <event-id>")
		return
	}
	res, err := a.audit.VerifyIntegrity(ctx, args[0])
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("hash valid: %v, merkle membership: %v, overall: %v\n",
		res.HashValid, res.MerkleProofValid, res.OverallValid)
}

func (a *App) listTrees(ctx context.Context, args []string) {
	limit := 10
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			limit = n
		}
	}
	trees, err := a.merkle.ListTrees(ctx, limit)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	for _, tr := range trees {
		source := "no proof"
		if tr.Proof != nil {
			source = string(tr.Proof.Source)
		}
		fmt.Printf("%s  %s  %d events, height %d, proof: %s\n",
			tr.ID, tr.CreatedAt.Format("2006-01-02 15:04:05"), len(tr.EventIDs), tr.Height, source)
	}
	fmt.Printf("%d tree(s)\n", len(trees))
}

func (a *App) verifyTree(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: verify-tree <tree-id>")
		return
	}
	res, err := a.merkle.VerifyTreeIntegrity(ctx, args[0])
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("count valid: %v (%d events), root valid: %v, proof valid: %v, overall: %v\n",
		res.CountValid, res.EventCount, res.RootValid, res.ProofValid, res.OverallValid)
	for _, id := range res.MissingIDs {
		fmt.Printf("missing event: %s\n", id)
	}
}

func (a *App) consolidate(ctx context.Context) {
	tree, err := a.merkle.ConsolidateOnce(ctx)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if tree == nil {
		fmt.Println("nothing to consolidate")
		return
	}
	fmt.Printf("tree %s: %d events, height %d, root %s\n",
		tree.ID, len(tree.EventIDs), tree.Height, tree.RootHash)
}

func (a *App) rollup(ctx context.Context) {
	pruned, err := a.audit.Consolidate(ctx)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("pruned %d detailed events into the rollup\n", pruned)
}

func (a *App) summary(ctx context.Context, args []string) {
	var from, to string
	if len(args) > 0 {
		from = args[0]
	}
	if len(args) > 1 {
		to = args[1]
	}
	rows, err := a.audit.Summaries(ctx, from, to)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	for _, r := range rows {
		fmt.Printf("%s  %-10s %-8s %d\n", r.Day, r.Entity, r.EventType, r.Count)
	}
	fmt.Printf("%d row(s)\n", len(rows))
}

func printRecord(rec *models.Record) {
	data, err := json.Marshal(rec.Data)
	if err != nil {
		data = []byte("{}")
	}
	fmt.Printf("%s  %s  %s\n", rec.ID, rec.UpdatedAt.Format("2006-01-02 15:04:05"), data)
}

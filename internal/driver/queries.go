package driver

// IndexQueries are applied by BuildIndices.
var IndexQueries = []string{
	"CREATE INDEX ON :Activity(id);",
	"CREATE INDEX ON :Activity(ts);",
	"CREATE INDEX ON :Cluster(id);",
	"CREATE INDEX ON :Persona(id);",
	"CREATE INDEX ON :Reference(key);",
}

const (
	SaveActivitiesQuery = `
		UNWIND $activities AS act
		MERGE (a:Activity {id: act.id})
		SET a.tool = act.tool,
			a.title = act.title,
			a.body = act.body,
			a.source_url = act.source_url,
			a.ts = act.ts,
			a.references = act.references,
			a.raw = act.raw
		WITH a, act
		FOREACH (ref IN act.references |
			MERGE (r:Reference {key: ref})
			MERGE (a)-[:REFERENCES]->(r))
		RETURN count(a) AS saved
	`

	activityReturn = `
		RETURN a.id AS id,
			a.tool AS tool,
			a.title AS title,
			a.body AS body,
			a.source_url AS source_url,
			a.ts AS ts,
			a.references AS references,
			a.raw AS raw
	`

	LookupActivitiesQuery = `
		MATCH (a:Activity)
		WHERE a.id IN $ids
	` + activityReturn

	ListActivitiesQuery = `
		MATCH (a:Activity)
		WHERE $since IS NULL OR a.ts >= $since
	` + activityReturn + `
		ORDER BY ts, id
	`

	SaveClusterQuery = `
		MERGE (k:Cluster {id: $id})
		SET k.activity_ids = $activity_ids,
			k.shared_references = $shared_references,
			k.activity_count = $activity_count,
			k.tool_count = $tool_count,
			k.tools = $tools,
			k.earliest = $earliest,
			k.latest = $latest
		WITH k
		OPTIONAL MATCH (k)-[old:HAS_MEMBER]->()
		DELETE old
		WITH DISTINCT k
		UNWIND $activity_ids AS aid
		MATCH (a:Activity {id: aid})
		MERGE (k)-[:HAS_MEMBER]->(a)
		RETURN count(a) AS members
	`

	GetClusterQuery = `
		MATCH (k:Cluster {id: $id})
		RETURN k.id AS id,
			k.activity_ids AS activity_ids,
			k.shared_references AS shared_references,
			k.activity_count AS activity_count,
			k.tool_count AS tool_count,
			k.tools AS tools,
			k.earliest AS earliest,
			k.latest AS latest
	`

	SavePersonaQuery = `
		MERGE (p:Persona {id: $id})
		SET p.display_name = $display_name,
			p.doc = $doc
		RETURN p.id AS id
	`

	GetPersonaQuery = `
		MATCH (p:Persona {id: $id})
		RETURN p.doc AS doc
	`
)

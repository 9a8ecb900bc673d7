package manifest

import "encoding/json"

// Migrations are pure payload transforms, one per version gap. Payloads
// newer than Version are read best-effort: chapters are extracted and no
// migration runs, tolerating forward compatibility.

type rawPayload map[string]json.RawMessage

var migrations = map[int]func(rawPayload) rawPayload{
	0: migrateV0toV1,
	1: migrateV1toV2,
}

// migrateV0toV1 wraps legacy unversioned payloads. Version 0 files were
// either {"chapters": {...}} without a version or a bare chapter map at the
// top level.
func migrateV0toV1(payload rawPayload) rawPayload {
	chapters, ok := payload["chapters"]
	if !ok || !isChapterMap(chapters) {
		if topLevel := chapterMapFromTopLevel(payload); topLevel != nil {
			chapters = topLevel
		} else {
			chapters = json.RawMessage(`{}`)
		}
	}
	return rawPayload{
		"version":  json.RawMessage(`1`),
		"chapters": chapters,
	}
}

// migrateV1toV2 adds the explicit schema marker.
func migrateV1toV2(payload rawPayload) rawPayload {
	chapters, ok := payload["chapters"]
	if !ok {
		chapters = json.RawMessage(`{}`)
	}
	return rawPayload{
		"version":  json.RawMessage(`2`),
		"schema":   json.RawMessage(`"` + Schema + `"`),
		"chapters": chapters,
	}
}

func isChapterMap(raw json.RawMessage) bool {
	var probe map[string]map[string]any
	return json.Unmarshal(raw, &probe) == nil
}

func chapterMapFromTopLevel(payload rawPayload) json.RawMessage {
	candidate := make(map[string]json.RawMessage)
	for key, value := range payload {
		if key == "version" || key == "schema" {
			continue
		}
		var probe map[string]any
		if json.Unmarshal(value, &probe) != nil {
			return nil
		}
		candidate[key] = value
	}
	if len(candidate) == 0 {
		return nil
	}
	merged, err := json.Marshal(candidate)
	if err != nil {
		return nil
	}
	return merged
}

func decodeChapters(raw json.RawMessage) map[string]Entry {
	var chapters map[string]Entry
	if raw == nil || json.Unmarshal(raw, &chapters) != nil || chapters == nil {
		return make(map[string]Entry)
	}
	return chapters
}

// normalizePayload migrates serialized bytes to the current schema. It
// returns the chapter map and whether a migration changed the payload.
// Any parse failure yields empty state.
func normalizePayload(serialized []byte) (map[string]Entry, bool) {
	var payload rawPayload
	if err := json.Unmarshal(serialized, &payload); err != nil || payload == nil {
		return make(map[string]Entry), false
	}

	version := 0
	if rawVersion, ok := payload["version"]; ok {
		var v int
		if json.Unmarshal(rawVersion, &v) == nil && v > 0 {
			version = v
		}
	}

	if version > Version {
		return decodeChapters(payload["chapters"]), false
	}

	migrated := false
	for version < Version {
		migrate, ok := migrations[version]
		if !ok {
			return make(map[string]Entry), false
		}
		payload = migrate(payload)
		version++
		migrated = true
	}
	return decodeChapters(payload["chapters"]), migrated
}

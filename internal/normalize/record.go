package normalize

import (
	"github.com/madfam-io/renec-harvester-sub000/internal/harvester"
)

// Entity canonicalizes a raw entity record and applies the advisory
// variant-specific checks: attribute bag canonicalization, standard-code
// pattern validation, region mapping, contact extraction, and the content
// hash over the resulting bag. Non-conforming values are kept and annotated
// in Notes; nothing here blocks persistence.
func Entity(h harvester.Hasher, rec harvester.EntityRecord) (harvester.EntityRecord, error) {
	rec.NaturalKey = Text(rec.NaturalKey)
	rec.Attributes = Bag(rec.Attributes)

	if rec.Variant == harvester.VariantStandard {
		code, ok := StandardCode(rec.NaturalKey)
		rec.NaturalKey = code
		if !ok && code != "" {
			rec.Notes = append(rec.Notes, NoteInvalidCode(code))
		}
	}

	if raw, present := rec.Attributes["state"]; present {
		st, ok := StateRegion(raw)
		rec.Attributes["state"] = st.Name
		if ok {
			rec.Attributes["state_code"] = st.Code
		} else {
			rec.Notes = append(rec.Notes, NoteUnmappedRegion(raw))
		}
	}

	if raw, present := rec.Attributes["contact"]; present {
		contacts := ExtractContacts(raw)
		rec.Attributes["contact"] = contacts.Join()
		if !contacts.Confident() {
			rec.Notes = append(rec.Notes, "contact kept raw: no known format matched")
		}
	}

	hash, err := ContentHash(h, rec.Attributes)
	if err != nil {
		return rec, err
	}
	rec.ContentHash = hash
	return rec, nil
}

// Edge canonicalizes a raw relationship record.
func Edge(rec harvester.RelationshipRecord) harvester.RelationshipRecord {
	rec.SourceKey = Text(rec.SourceKey)
	rec.TargetKey = Text(rec.TargetKey)
	rec.Attributes = Bag(rec.Attributes)
	return rec
}

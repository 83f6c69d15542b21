package favorites

// Reconciler keeps positional references pointing at the same logical
// message after the host log is renumbered. References that are not
// plain decimal indices are never touched.
type Reconciler struct {
	reg *Registry
}

func NewReconciler(reg *Registry) *Reconciler {
	return &Reconciler{reg: reg}
}

// Deleted applies the removal of the message at position p: the record
// pointing at p is dropped and every record above p moves down by one.
func (rc *Reconciler) Deleted(conv *Conversation, p int) (removed []Record, shifted int) {
	recs, ok := rc.reg.EnsureInitialized(conv)
	if !ok || p < 0 {
		return nil, 0
	}
	out := make([]Record, 0, len(recs))
	for _, rec := range recs {
		i, ok := parseIndex(rec.MessageRef)
		switch {
		case !ok || i < p:
			out = append(out, rec)
		case i == p:
			removed = append(removed, rec)
		default:
			rec.MessageRef = formatIndex(i - 1)
			out = append(out, rec)
			shifted++
		}
	}
	if len(removed) == 0 && shifted == 0 {
		return nil, 0
	}
	rc.reg.commit(conv, out)
	rc.reg.logger.Debug("favorites: reconciled deletion",
		"conversation", conv.ID, "position", p, "removed", len(removed), "shifted", shifted)
	return removed, shifted
}

// Inserted applies the insertion of count messages starting at position
// p: every record at or above p moves up by count.
func (rc *Reconciler) Inserted(conv *Conversation, p, count int) (shifted int) {
	recs, ok := rc.reg.EnsureInitialized(conv)
	if !ok || p < 0 {
		return 0
	}
	if count < 1 {
		count = 1
	}
	out := make([]Record, len(recs))
	for j, rec := range recs {
		if i, ok := parseIndex(rec.MessageRef); ok && i >= p {
			rec.MessageRef = formatIndex(i + count)
			shifted++
		}
		out[j] = rec
	}
	if shifted == 0 {
		return 0
	}
	rc.reg.commit(conv, out)
	rc.reg.logger.Debug("favorites: reconciled insertion",
		"conversation", conv.ID, "position", p, "count", count, "shifted", shifted)
	return shifted
}

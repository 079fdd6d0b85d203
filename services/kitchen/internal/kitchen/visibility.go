package kitchen

// LineVisibleOn reports whether a line renders on the screen: the line is
// cooking and its product shares at least one category with the screen.
func LineVisibleOn(line *OrderLine, product *Product, screen *Screen) bool {
	if line == nil || product == nil || screen == nil || !line.IsCooking {
		return false
	}
	return categoriesIntersect(product.CategoryIDs, screen.CategoryIDs)
}

// VisibleLines filters lines down to the ones visible on screen, preserving
// input order. products must hold the current catalog state for every line;
// results are never cached because category membership changes independently.
func VisibleLines(lines []*OrderLine, products map[ProductID]*Product, screen *Screen) []*OrderLine {
	visible := make([]*OrderLine, 0, len(lines))
	for _, l := range lines {
		if LineVisibleOn(l, products[l.ProductID], screen) {
			visible = append(visible, l)
		}
	}
	return visible
}

// VisibleLineIDs is VisibleLines reduced to ids.
func VisibleLineIDs(lines []*OrderLine, products map[ProductID]*Product, screen *Screen) []LineID {
	visible := VisibleLines(lines, products, screen)
	ids := make([]LineID, len(visible))
	for i, l := range visible {
		ids[i] = l.ID
	}
	return ids
}

// cookingCategories is the union of product categories over cooking lines.
func cookingCategories(lines []*OrderLine, products map[ProductID]*Product) []CategoryID {
	seen := make(map[CategoryID]struct{})
	var out []CategoryID
	for _, l := range lines {
		if !l.IsCooking {
			continue
		}
		p := products[l.ProductID]
		if p == nil {
			continue
		}
		for _, cid := range p.CategoryIDs {
			if _, ok := seen[cid]; ok {
				continue
			}
			seen[cid] = struct{}{}
			out = append(out, cid)
		}
	}
	return out
}

func hasCookingLine(lines []*OrderLine) bool {
	for _, l := range lines {
		if l.IsCooking {
			return true
		}
	}
	return false
}

func categoriesIntersect(a, b []CategoryID) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[CategoryID]struct{}, len(b))
	for _, id := range b {
		set[id] = struct{}{}
	}
	for _, id := range a {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}

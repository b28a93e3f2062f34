package format

import (
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// collides сообщает, совпадает ли какой-либо шаблон a с примером b.
func collides(a, b *Definition) bool {
	for _, p := range a.Patterns {
		if p.ModuleFormat {
			continue
		}
		for _, s := range b.Samples {
			if p.Regex.Matches(s.Line) {
				return true
			}
		}
	}
	return false
}

// resolveOrder строит граф коллизий (ребро a→b, если шаблоны a совпадают
// с примерами b) и выдаёт форматы волнами: сначала те, у кого нет
// исходящих рёбер. Цикл разрывается очисткой рёбер первого по имени
// не встроенного формата; если таких нет, то первого встроенного.
func resolveOrder(defs []*Definition, logger *zap.Logger) ([]*Definition, map[string][]string) {
	sorted := append([]*Definition(nil), defs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	g := simple.NewDirectedGraph()
	for i := range sorted {
		g.AddNode(simple.Node(int64(i)))
	}

	collisions := make(map[string][]string)
	for i, a := range sorted {
		for j, b := range sorted {
			if i == j || !collides(a, b) {
				continue
			}
			logger.Warn("Формат совпадает с примерами другого формата",
				zap.String("format", a.Name), zap.String("collides_with", b.Name))
			collisions[a.Name] = append(collisions[a.Name], b.Name)
			g.SetEdge(g.NewEdge(simple.Node(int64(i)), simple.Node(int64(j))))
		}
	}

	for _, scc := range topo.TarjanSCC(g) {
		if len(scc) < 2 {
			continue
		}
		names := make([]string, 0, len(scc))
		for _, n := range scc {
			names = append(names, sorted[n.ID()].Name)
		}
		sort.Strings(names)
		logger.Warn("Обнаружен цикл коллизий форматов", zap.Strings("formats", names))
	}

	order := make([]*Definition, 0, len(sorted))
	remaining := len(sorted)
	for remaining > 0 {
		var wave []int64
		for i := range sorted {
			id := int64(i)
			if g.Node(id) == nil {
				continue
			}
			if g.From(id).Len() == 0 {
				wave = append(wave, id)
			}
		}

		if len(wave) == 0 {
			breakCycle(g, sorted, logger)
			continue
		}

		for _, id := range wave {
			order = append(order, sorted[id])
			g.RemoveNode(id)
			remaining--
		}
	}

	names := make([]string, len(order))
	for i, d := range order {
		names[i] = d.Name
	}
	logger.Info("Порядок проверки форматов", zap.Strings("order", names))
	return order, collisions
}

func breakCycle(g *simple.DirectedGraph, sorted []*Definition, logger *zap.Logger) {
	victim := int64(-1)
	for i, d := range sorted {
		id := int64(i)
		if g.Node(id) == nil {
			continue
		}
		if victim == -1 {
			victim = id
		}
		if !d.Builtin {
			victim = id
			break
		}
	}

	logger.Warn("Разрываем цикл коллизий", zap.String("format", sorted[victim].Name))
	for _, to := range graph.NodesOf(g.From(victim)) {
		g.RemoveEdge(victim, to.ID())
	}
}

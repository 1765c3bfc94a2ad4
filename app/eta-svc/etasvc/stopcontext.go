package etasvc

//resolveStopContext assigns each fix its previous and next stops by 1-NN lookup
//into the stop pair index of the fix's resolved trip, then computes the
//along-shape distance from the fix to its next stop.
func resolveStopContext(batch []directedFix, index *GeometryIndex) ([]stopFix, error) {
	result := make([]stopFix, 0, len(batch))

	for _, fix := range batch {
		tree, err := index.tripPairTree(fix.Corridor, fix.TripShapeId)
		if err != nil {
			return nil, err
		}
		nearest, ok := tree.Nearest(fix.Latitude, fix.Longitude)
		if !ok {
			return nil, newConfigurationErrorf("stop pair index for corridor %s trip %s is empty",
				fix.Corridor, fix.TripShapeId)
		}
		row, err := index.pairRow(fix.Corridor, nearest.Index)
		if err != nil {
			return nil, err
		}

		distance, err := index.AlongShapeDistance(fix.TripShapeId, row.PrevStop, row.NextStop,
			fix.Latitude, fix.Longitude)
		if err != nil {
			return nil, err
		}

		result = append(result, stopFix{
			directedFix:    fix,
			NextStop:       row.NextStop,
			PrevStop:       row.PrevStop,
			NextStopSeq:    row.NextStopSeq,
			PrevStopSeq:    row.PrevStopSeq,
			NextStopDistKm: distance,
		})
	}
	return result, nil
}

// Package exiletree decodes shareable character-build codes and renders the
// passive skill tree they allocate, as an [Ebitengine] viewer component.
//
// The pipeline has three stages. [DecodeBuildCode] turns a build code (or a
// hosted-paste link) into one or more [BuildLoadout] values. A [Repository]
// loads the static [TreeVersionGraph] for the tree revision a loadout was
// authored against. A [TreeViewer] combines the two: it resolves every graph
// node to world coordinates, then draws, pans, zooms, and hit-tests the
// node-and-edge lattice on a resizable canvas.
//
// # Quick start
//
//	build, err := exiletree.DecodeBuildCode(context.Background(), code, nil)
//	if err != nil {
//		// *exiletree.DecodeError or *exiletree.FetchError
//	}
//	repo := exiletree.NewRepository(exiletree.NewFileGraphSource("data"))
//	viewer := exiletree.NewViewer(repo, exiletree.ViewerConfig{AssetRoot: "assets"})
//	viewer.Load(build.Loadouts[0])
//
// Then call [TreeViewer.Update] and [TreeViewer.Draw] from an [ebiten.Game].
// A runnable example lives in examples/viewer.
//
// # Coordinate convention
//
// Tree nodes are placed on orbits around group anchors. Orbit angle 0 points
// up and angles increase clockwise, so a node's world position is
//
//	x = group.x + sin(angle) * radius
//	y = group.y - cos(angle) * radius
//
// Every transform in this package (position resolution, arc drawing,
// hit-testing) relies on that convention.
//
// # Collaborators
//
// The host application supplies the pieces this package treats as external:
// a [PasteFetcher] for hosted-paste resolution, a [GraphSource] for tree
// structure data, an [AllocationStore] for persistence, and an asset root
// under which node icons and class illustrations are resolved.
//
// [Ebitengine]: https://ebitengine.org
package exiletree

// Package reconcile decides how a newly generated spec is
// turned into the text that gets committed. A first
// publish is only normalized (lint fix then format). When
// a spec already exists upstream the two versions are
// always merged by the external reconcile tool first and
// the merge result is normalized. Normalization and
// merging are delegated to collaborators behind the
// Normalizer and Reconciler interfaces; CommandNormalizer
// and CommandReconciler run them as subprocesses.
package reconcile

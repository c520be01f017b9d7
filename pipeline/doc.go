// Package pipeline is the boundary between the HTTP dispatcher and the
// services that process a unit of work.
//
// A Workflow runs every submitted unit through the same sequence:
//
//  1. Interceptor.WorkflowStart, in order, on the submitting goroutine.
//     An interceptor may mark the unit SkipProduction (admission rejection)
//     which stops the remaining starts and the services.
//  2. The workflow's services, in order, stopping at the first error. A
//     service error goes to the ErrorResponder.
//  3. Interceptor.WorkflowEnd, in reverse order, for every interceptor whose
//     start ran.
//  4. If the unit still carries an exchange that was not parked for another
//     workflow, the exchange's monitor is signalled.
//
// Standard runs all of this inline. Pooling runs step 1 inline, so that
// admission rejects before anything is queued, and steps 2-4 on a worker.
package pipeline
